package kalshi

// market.go: market data: quotes, order book depth, candidate listing.

import (
	"context"
	"fmt"
	"net/url"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
)

// GetQuote returns the live YES-space bid/ask/last view for a market.
func (c *Client) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	var resp marketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(marketID), &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("kalshi.GetQuote %s: %w", marketID, err)
	}
	m := resp.Market
	return domain.Quote{
		MarketID:  m.Ticker,
		Bid:       m.YesBid,
		Ask:       m.YesAsk,
		LastPrice: m.LastPrice,
		Volume24h: m.Volume24h,
	}, nil
}

// GetOrderbook returns a YES-space depth snapshot. The exchange reports
// resting YES and NO bids; a NO bid at p is a YES ask at 100−p.
func (c *Client) GetOrderbook(ctx context.Context, marketID string) (domain.Orderbook, error) {
	var resp orderbookResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(marketID)+"/orderbook", &resp); err != nil {
		return domain.Orderbook{}, fmt.Errorf("kalshi.GetOrderbook %s: %w", marketID, err)
	}

	var ob domain.Orderbook
	for _, l := range resp.Orderbook.Yes {
		ob.Bids = append(ob.Bids, domain.PriceLevel{Price: l[0], Count: l[1]})
	}
	for _, l := range resp.Orderbook.No {
		ob.Asks = append(ob.Asks, domain.PriceLevel{Price: 100 - l[0], Count: l[1]})
	}
	return ob, nil
}

// GetCandidates lists active markets whose favorite side is priced at or
// above minPrice and shapes them as allocator inputs. Ranking heuristics
// beyond this listing live with the caller.
func (c *Client) GetCandidates(ctx context.Context, minPrice int) ([]domain.Candidate, error) {
	var out []domain.Candidate
	cursor := ""
	for {
		path := fmt.Sprintf("/markets?status=open&limit=%d", pageLimit)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp marketsResponse
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetCandidates: %w", err)
		}

		for _, m := range resp.Markets {
			cand, ok := favoriteCandidate(m, minPrice)
			if !ok {
				continue
			}
			book, err := c.GetOrderbook(ctx, m.Ticker)
			if err != nil {
				// Depth stays zero; the liquidity score filter decides.
				book = domain.Orderbook{}
			}
			if cand.Side == domain.SideYes {
				cand.DepthAtPrice = book.DepthAt(cand.Price)
			} else {
				// Un comprador NO a precio q cruza contra los bids YES a
				// 100-q, no contra los asks.
				cand.DepthAtPrice = book.DepthAtBid(100 - cand.Price)
			}
			out = append(out, cand)
		}

		if resp.Cursor == "" {
			return out, nil
		}
		cursor = resp.Cursor
	}
}

// favoriteCandidate picks the side priced above 50¢ and shapes the market as
// a candidate. Markets without a favorite at minPrice are skipped.
func favoriteCandidate(m apiMarket, minPrice int) (domain.Candidate, bool) {
	side := domain.SideYes
	ask := m.YesAsk
	spread := m.YesAsk - m.YesBid
	if m.NoAsk > m.YesAsk {
		side = domain.SideNo
		ask = m.NoAsk
		spread = m.NoAsk - m.NoBid
	}
	if ask < minPrice || ask >= 100 || spread < 0 {
		return domain.Candidate{}, false
	}
	return domain.Candidate{
		MarketID:     m.Ticker,
		EventID:      m.EventTicker,
		Side:         side,
		Price:        ask,
		OpenInterest: m.OpenInterest,
		Volume24h:    m.Volume24h,
		Spread:       spread,
	}, true
}
