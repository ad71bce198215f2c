package stoploss

// Internal test package: the re-fetch delay is stubbed through the
// monitor's sleep hook.

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/adapters/storage"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/ports"
)

// fakeExchange serves quotes per market in sequence; the last quote repeats
// once the sequence is exhausted, so re-fetches can observe a change.
type fakeExchange struct {
	quotes  map[string][]domain.Quote
	books   map[string]domain.Orderbook
	submits []ports.SubmitOrderRequest
}

func (f *fakeExchange) GetBalance(ctx context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}

func (f *fakeExchange) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakeExchange) GetOrders(ctx context.Context) ([]domain.ExchangeOrder, error) {
	return nil, nil
}

func (f *fakeExchange) GetFills(ctx context.Context) ([]domain.Fill, error) {
	return nil, nil
}

func (f *fakeExchange) GetSettlements(ctx context.Context) ([]domain.Settlement, error) {
	return nil, nil
}

func (f *fakeExchange) GetOrderbook(ctx context.Context, marketID string) (domain.Orderbook, error) {
	return f.books[marketID], nil
}

func (f *fakeExchange) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	seq := f.quotes[marketID]
	if len(seq) == 0 {
		return domain.Quote{}, fmt.Errorf("no quote for %s", marketID)
	}
	q := seq[0]
	if len(seq) > 1 {
		f.quotes[marketID] = seq[1:]
	}
	return q, nil
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, req ports.SubmitOrderRequest) (ports.SubmitResult, error) {
	f.submits = append(f.submits, req)
	return ports.SubmitResult{ExternalOrderID: "ext-" + req.ClientID, Status: "executed"}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, externalOrderID string) error {
	return nil
}

func testConfig() Config {
	return Config{
		Threshold:        75,
		SpreadCeiling:    5,
		MidTolerance:     3,
		MinVolume24h:     100,
		RecheckDelay:     2 * time.Second,
		RecheckTolerance: 3,
		BadDataPrices:    []int{1, 50, 99},
		SamePriceAnomaly: 4,
	}
}

func newMonitor(t *testing.T, exchange *fakeExchange) (*Monitor, *storage.SQLiteLedger, *int) {
	t.Helper()
	ledger, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	m := New(ledger, exchange, testConfig())
	slept := 0
	m.sleep = func(ctx context.Context, d time.Duration) { slept++ }
	return m, ledger, &slept
}

func openOrder(t *testing.T, ledger *storage.SQLiteLedger, id, market string, side domain.Side, price, units int) domain.Order {
	t.Helper()
	o := domain.NewOrder(id, "b1", market, "EVT-"+market, side, price, units)
	o.Placement = domain.PlacementConfirmed
	o.ExternalOrderID = "ext-" + id
	o.ExecutedPrice = price
	o.FilledUnits = units
	o.Cost = units * price
	require.NoError(t, ledger.SaveOrder(context.Background(), o))
	return o
}

// goodQuote builds a tight, active quote around last.
func goodQuote(last, volume int) domain.Quote {
	return domain.Quote{Bid: last - 1, Ask: last + 1, LastPrice: last, Volume24h: volume}
}

func TestRun_HighConfidenceExit(t *testing.T) {
	exchange := &fakeExchange{
		quotes: map[string][]domain.Quote{"MKT-A": {goodQuote(60, 500)}},
	}
	m, ledger, _ := newMonitor(t, exchange)
	ctx := context.Background()
	openOrder(t, ledger, "o1", "MKT-A", domain.SideYes, 92, 10)

	summary, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Exited)

	require.Len(t, exchange.submits, 1)
	req := exchange.submits[0]
	assert.Equal(t, "o1-exit", req.ClientID)
	assert.Equal(t, "sell", req.Action)
	assert.Equal(t, "market", req.Type)
	assert.Equal(t, 10, req.Units)

	got, err := ledger.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.StopLossExit)
	assert.Equal(t, 60, got.ExitPrice)
	require.NotNil(t, got.ExitedAt)
}

func TestRun_HoldsAboveThreshold(t *testing.T) {
	exchange := &fakeExchange{
		quotes: map[string][]domain.Quote{"MKT-A": {goodQuote(80, 500)}},
	}
	m, ledger, _ := newMonitor(t, exchange)
	openOrder(t, ledger, "o1", "MKT-A", domain.SideYes, 92, 10)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Held)
	assert.Empty(t, exchange.submits)
}

func TestRun_NoSidePriceConversion(t *testing.T) {
	// YES last of 30 means the NO holder's price is 70, still below 75.
	exchange := &fakeExchange{
		quotes: map[string][]domain.Quote{"MKT-A": {goodQuote(30, 500)}},
	}
	m, ledger, _ := newMonitor(t, exchange)
	ctx := context.Background()
	openOrder(t, ledger, "o1", "MKT-A", domain.SideNo, 68, 10)

	summary, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Exited)

	got, err := ledger.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 70, got.ExitPrice)
}

func TestRun_SuspiciousDataBlocksExit(t *testing.T) {
	// No bid, no ask, no volume: every check fails. The position must be
	// held no matter how far the price looks below threshold.
	exchange := &fakeExchange{
		quotes: map[string][]domain.Quote{"MKT-A": {{LastPrice: 30}}},
	}
	m, ledger, _ := newMonitor(t, exchange)
	ctx := context.Background()
	openOrder(t, ledger, "o1", "MKT-A", domain.SideYes, 92, 10)

	summary, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Blocked)
	require.Len(t, summary.DataAlerts, 1)
	assert.Empty(t, exchange.submits)

	got, err := ledger.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, got.StopLossExit)
}

func TestRun_BadDataPriceBlocksExit(t *testing.T) {
	// A perfect-looking quote at exactly 50¢ matches a known glitch value.
	exchange := &fakeExchange{
		quotes: map[string][]domain.Quote{"MKT-A": {goodQuote(50, 500)}},
	}
	m, ledger, _ := newMonitor(t, exchange)
	openOrder(t, ledger, "o1", "MKT-A", domain.SideYes, 92, 10)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Blocked)
	assert.Empty(t, exchange.submits)
}

func TestRun_LowConfidenceRecheckConfirms(t *testing.T) {
	// Wide spread and thin volume: two failures, so the monitor waits and
	// re-fetches. The second reading agrees and the exit proceeds at it.
	first := domain.Quote{Bid: 55, Ask: 65, LastPrice: 60, Volume24h: 0}
	exchange := &fakeExchange{
		quotes: map[string][]domain.Quote{"MKT-A": {first, goodQuote(59, 500)}},
	}
	m, ledger, slept := newMonitor(t, exchange)
	ctx := context.Background()
	openOrder(t, ledger, "o1", "MKT-A", domain.SideYes, 92, 10)

	summary, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Exited)
	assert.Equal(t, 1, *slept)

	got, err := ledger.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 59, got.ExitPrice)
}

func TestRun_LowConfidenceRecheckDisagrees(t *testing.T) {
	// The re-fetch comes back above threshold: the first reading was noise.
	first := domain.Quote{Bid: 55, Ask: 65, LastPrice: 60, Volume24h: 0}
	exchange := &fakeExchange{
		quotes: map[string][]domain.Quote{"MKT-A": {first, goodQuote(80, 500)}},
	}
	m, ledger, slept := newMonitor(t, exchange)
	openOrder(t, ledger, "o1", "MKT-A", domain.SideYes, 92, 10)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, *slept)
	assert.Empty(t, exchange.submits)
}

func TestRun_SamePriceAnomalyBlocksAll(t *testing.T) {
	// Cuatro mercados degradados (volumen fino) reportando last=60 a la vez
	// es un feed roto, no cuatro desplomes simultáneos.
	quotes := make(map[string][]domain.Quote)
	exchange := &fakeExchange{quotes: quotes}
	m, ledger, _ := newMonitor(t, exchange)

	for i := 1; i <= 4; i++ {
		market := fmt.Sprintf("MKT-%d", i)
		quotes[market] = []domain.Quote{goodQuote(60, 10)}
		openOrder(t, ledger, fmt.Sprintf("o%d", i), market, domain.SideYes, 92, 10)
	}

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Blocked)
	assert.Equal(t, 0, summary.Exited)
	assert.Empty(t, exchange.submits)
}

func TestRun_SharedCleanPriceIsNotAnomalous(t *testing.T) {
	// Cuatro lecturas limpias al mismo precio no son anomalía: muchos
	// favoritos descansan en los mismos centavos. Las salidas proceden.
	quotes := make(map[string][]domain.Quote)
	exchange := &fakeExchange{quotes: quotes}
	m, ledger, _ := newMonitor(t, exchange)

	for i := 1; i <= 4; i++ {
		market := fmt.Sprintf("MKT-%d", i)
		quotes[market] = []domain.Quote{goodQuote(60, 500)}
		openOrder(t, ledger, fmt.Sprintf("o%d", i), market, domain.SideYes, 92, 10)
	}

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Exited)
	assert.Equal(t, 0, summary.Blocked)
	assert.Len(t, exchange.submits, 4)
}

func TestGrade(t *testing.T) {
	m := &Monitor{cfg: testConfig()}

	tests := []struct {
		name  string
		quote domain.Quote
		want  Confidence
	}{
		{"clean reading", goodQuote(60, 500), ConfidenceHigh},
		{"thin volume", goodQuote(60, 10), ConfidenceMedium},
		{"wide spread and thin volume", domain.Quote{Bid: 55, Ask: 65, LastPrice: 60, Volume24h: 0}, ConfidenceLow},
		{"empty quote", domain.Quote{LastPrice: 60}, ConfidenceSuspicious},
		{"glitch price", goodQuote(99, 500), ConfidenceSuspicious},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.grade(reading{quote: tt.quote}, 1)
			assert.Equal(t, tt.want, got)
		})
	}
}
