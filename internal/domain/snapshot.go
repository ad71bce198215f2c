package domain

import "time"

// Balance is the exchange-reported account balance in cents.
type Balance struct {
	Cash          int // available to allocate
	PositionValue int // current exposure value
}

// PortfolioValue is cash plus current exposure.
func (b Balance) PortfolioValue() int {
	return b.Cash + b.PositionValue
}

// Position is exchange-reported truth for one market. Ephemeral: refreshed
// each pass, never persisted as the source of truth.
type Position struct {
	MarketID     string
	Side         Side
	NetContracts int
	ExposureCost int // cents, cost basis of the held contracts
}

// ExchangeOrder is an order as the exchange reports it.
type ExchangeOrder struct {
	ExternalID  string
	ClientID    string
	MarketID    string
	Side        Side
	Status      string // resting, pending, executed, cancelled, expired
	FilledCount int
	Price       int // cents
	CreatedAt   time.Time
}

// Resting reports whether the exchange still holds the order on its book.
func (eo ExchangeOrder) Resting() bool {
	return eo.Status == "resting" || eo.Status == "pending"
}

// Terminal reports whether the exchange has closed the order without a fill.
func (eo ExchangeOrder) Terminal() bool {
	return eo.Status == "cancelled" || eo.Status == "expired"
}

// Fill is one execution record for an exchange order.
type Fill struct {
	ExternalOrderID string
	Count           int
	Price           int // cents
	Side            Side
	CreatedAt       time.Time
}

// Settlement is the exchange's final payout/fee record for a resolved market.
type Settlement struct {
	MarketID   string
	ResultSide Side
	Revenue    int // cents paid out
	Fee        int // cents
	SettledAt  time.Time
}

// PriceLevel is one price step of an order book side.
type PriceLevel struct {
	Price int // cents
	Count int // contracts offered at this price
}

// Orderbook is a depth snapshot for one market, both sides quoted in
// YES-price space.
type Orderbook struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// BestBid returns the highest bid price, 0 if the book side is empty.
func (ob Orderbook) BestBid() int {
	best := 0
	for _, l := range ob.Bids {
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask price, 0 if the book side is empty.
func (ob Orderbook) BestAsk() int {
	best := 0
	for _, l := range ob.Asks {
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}

// Spread returns ask minus bid, or 0 when either side is missing.
func (ob Orderbook) Spread() int {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// DepthAt returns the contracts available at or below the given ask price.
func (ob Orderbook) DepthAt(price int) int {
	total := 0
	for _, l := range ob.Asks {
		if l.Price <= price {
			total += l.Count
		}
	}
	return total
}

// DepthAtBid returns the contracts bid at or above the given price. This is
// the liquidity a NO buyer fills against: a YES bid at b sells NO at 100-b.
func (ob Orderbook) DepthAtBid(price int) int {
	total := 0
	for _, l := range ob.Bids {
		if l.Price >= price {
			total += l.Count
		}
	}
	return total
}

// Quote is the live price view of one market used by the stop-loss monitor.
type Quote struct {
	MarketID  string
	Bid       int // cents, 0 when absent
	Ask       int // cents, 0 when absent
	LastPrice int // cents
	Volume24h int
}

// Midpoint returns the bid/ask midpoint, 0 when either quote is missing.
func (q Quote) Midpoint() int {
	if q.Bid == 0 || q.Ask == 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// SidePrice translates a YES-space price into the price of the given side.
func SidePrice(price int, side Side) int {
	if side == SideYes {
		return price
	}
	return 100 - price
}

// MarketExposure sums the exposure cost held in one market. Pure function of
// the current snapshot: callers must pass freshly fetched positions, never a
// cached total.
func MarketExposure(positions []Position, marketID string) int {
	total := 0
	for _, p := range positions {
		if p.MarketID == marketID {
			total += p.ExposureCost
		}
	}
	return total
}

// EventExposure sums exposure across every market belonging to the event.
func EventExposure(positions []Position, eventMarkets []string) int {
	total := 0
	for _, m := range eventMarkets {
		total += MarketExposure(positions, m)
	}
	return total
}

// HardCap computes the per-market/per-event exposure ceiling in cents.
func HardCap(portfolioValue int, maxPositionPct float64) int {
	return int(float64(portfolioValue) * maxPositionPct)
}
