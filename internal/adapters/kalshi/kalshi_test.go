package kalshi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/adapters/kalshi"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *kalshi.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return kalshi.NewClient(server.URL, "test-key")
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write([]byte(body))
	require.NoError(t, err)
}

func TestGetBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/portfolio/balance", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		writeJSON(t, w, `{"balance": 100000, "position_value": 2800}`)
	})

	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100_000, balance.Cash)
	assert.Equal(t, 2800, balance.PositionValue)
	assert.Equal(t, 102_800, balance.PortfolioValue())
}

func TestGetPositions_MapsSignedContracts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, `{"market_positions": [
			{"ticker": "MKT-A", "position": 31, "market_exposure": 2800},
			{"ticker": "MKT-B", "position": -5, "market_exposure": 40},
			{"ticker": "MKT-FLAT", "position": 0, "market_exposure": 0}
		], "cursor": ""}`)
	})

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, domain.SideYes, positions[0].Side)
	assert.Equal(t, 31, positions[0].NetContracts)
	assert.Equal(t, 2800, positions[0].ExposureCost)

	assert.Equal(t, domain.SideNo, positions[1].Side)
	assert.Equal(t, 5, positions[1].NetContracts)
}

func TestGetOrders_PaginatesToCompletion(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("cursor") {
		case "":
			writeJSON(t, w, `{"orders": [
				{"order_id": "ext1", "ticker": "MKT-A", "side": "yes", "status": "resting", "yes_price": 92},
				{"order_id": "ext2", "ticker": "MKT-B", "side": "no", "status": "executed", "no_price": 12, "fill_count": 3}
			], "cursor": "page2"}`)
		case "page2":
			writeJSON(t, w, `{"orders": [
				{"order_id": "ext3", "ticker": "MKT-C", "side": "yes", "status": "cancelled"}
			], "cursor": ""}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})

	orders, err := client.GetOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, orders, 3)

	assert.Equal(t, "ext1", orders[0].ExternalID)
	assert.True(t, orders[0].Resting())

	// NO-side orders report the NO price, the cents this holder pays.
	assert.Equal(t, 12, orders[1].Price)
	assert.Equal(t, 3, orders[1].FilledCount)

	assert.True(t, orders[2].Terminal())
}

func TestGetFills_UsesSideSpacePrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, `{"fills": [
			{"order_id": "ext1", "ticker": "MKT-A", "side": "yes", "count": 10, "yes_price": 92, "no_price": 8},
			{"order_id": "ext2", "ticker": "MKT-B", "side": "no", "count": 4, "yes_price": 70, "no_price": 30}
		], "cursor": ""}`)
	})

	fills, err := client.GetFills(context.Background())
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, 92, fills[0].Price)
	assert.Equal(t, 30, fills[1].Price)
}

func TestGetOrderbook_ConvertsNoBidsToYesAsks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/MKT-A/orderbook", r.URL.Path)
		writeJSON(t, w, `{"orderbook": {
			"yes": [[90, 100], [89, 50]],
			"no":  [[5, 200], [7, 80]]
		}}`)
	})

	book, err := client.GetOrderbook(context.Background(), "MKT-A")
	require.NoError(t, err)

	assert.Equal(t, 90, book.BestBid())
	// A NO bid at 5¢ is a YES ask at 95¢.
	assert.Equal(t, 93, book.BestAsk())
	assert.Equal(t, 280, book.DepthAt(95))
	assert.Equal(t, 3, book.Spread())
}

func TestGetQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/MKT-A", r.URL.Path)
		writeJSON(t, w, `{"market": {
			"ticker": "MKT-A", "yes_bid": 91, "yes_ask": 93,
			"last_price": 92, "volume_24h": 4500
		}}`)
	})

	quote, err := client.GetQuote(context.Background(), "MKT-A")
	require.NoError(t, err)
	assert.Equal(t, 91, quote.Bid)
	assert.Equal(t, 93, quote.Ask)
	assert.Equal(t, 92, quote.LastPrice)
	assert.Equal(t, 92, quote.Midpoint())
}

func TestSubmitOrder_LimitBuySetsSidePrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/portfolio/orders", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "o1", body["client_order_id"])
		assert.Equal(t, "buy", body["action"])
		assert.Equal(t, "limit", body["type"])
		assert.Equal(t, float64(92), body["yes_price"])
		assert.NotContains(t, body, "no_price")

		writeJSON(t, w, `{"order": {
			"order_id": "ext1", "client_order_id": "o1", "ticker": "MKT-A",
			"side": "yes", "status": "executed", "yes_price": 92, "fill_count": 10
		}}`)
	})

	res, err := client.SubmitOrder(context.Background(), ports.SubmitOrderRequest{
		ClientID:   "o1",
		MarketID:   "MKT-A",
		Side:       domain.SideYes,
		Action:     "buy",
		Type:       "limit",
		LimitPrice: 92,
		Units:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, "ext1", res.ExternalOrderID)
	assert.Equal(t, "executed", res.Status)
	assert.Equal(t, 10, res.FilledCount)
	assert.Equal(t, 92, res.ExecutedPrice)
}

func TestCancelOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/portfolio/orders/ext1", r.URL.Path)
		writeJSON(t, w, `{}`)
	})

	require.NoError(t, client.CancelOrder(context.Background(), "ext1"))
}

func TestGetCandidates_PicksFavoriteSide(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/markets" {
			writeJSON(t, w, `{"markets": [
				{"ticker": "MKT-FAV", "event_ticker": "EVT-1", "status": "open",
				 "yes_bid": 91, "yes_ask": 92, "no_bid": 7, "no_ask": 9,
				 "last_price": 92, "volume_24h": 4000, "open_interest": 2500},
				{"ticker": "MKT-TOSSUP", "event_ticker": "EVT-2", "status": "open",
				 "yes_bid": 48, "yes_ask": 52, "no_bid": 46, "no_ask": 50,
				 "last_price": 50}
			], "cursor": ""}`)
			return
		}
		// Depth lookup for the retained market.
		writeJSON(t, w, `{"orderbook": {"yes": [[91, 40]], "no": [[8, 300]]}}`)
	})

	candidates, err := client.GetCandidates(context.Background(), 85)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "MKT-FAV", c.MarketID)
	assert.Equal(t, "EVT-1", c.EventID)
	assert.Equal(t, domain.SideYes, c.Side)
	assert.Equal(t, 92, c.Price)
	assert.Equal(t, 1, c.Spread)
	// The NO bid at 8¢ rests as a 92¢ YES ask, fillable at our price.
	assert.Equal(t, 300, c.DepthAtPrice)
}

func TestGetCandidates_NoFavoriteDepthFromYesBids(t *testing.T) {
	// NO favorito a 92¢: su liquidez son los bids YES a 8¢, que venden NO a
	// 92¢. Los asks YES no le sirven de nada.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/markets" {
			writeJSON(t, w, `{"markets": [
				{"ticker": "MKT-NOFAV", "event_ticker": "EVT-1", "status": "open",
				 "yes_bid": 8, "yes_ask": 12, "no_bid": 88, "no_ask": 92,
				 "last_price": 8, "volume_24h": 4000, "open_interest": 2500}
			], "cursor": ""}`)
			return
		}
		writeJSON(t, w, `{"orderbook": {"yes": [[8, 700], [7, 200]], "no": [[88, 60]]}}`)
	})

	candidates, err := client.GetCandidates(context.Background(), 85)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, domain.SideNo, c.Side)
	assert.Equal(t, 92, c.Price)
	require.NotZero(t, c.DepthAtPrice)
	assert.Equal(t, 700, c.DepthAtPrice)
}

func TestClientError_NotRetried(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": "insufficient_balance"}`, http.StatusBadRequest)
	})

	_, err := client.GetBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient_balance")
	assert.Equal(t, 1, calls)
}

func TestServerError_Retried(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		writeJSON(t, w, `{"balance": 100}`)
	})

	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, balance.Cash)
	assert.Equal(t, 2, calls)
}
