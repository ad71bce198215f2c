package ports

import (
	"context"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
)

// SubmitOrderRequest is sent to the exchange when placing an order.
// ClientID is the idempotent client-assigned id: resubmitting with the same
// id never creates a second exchange order.
type SubmitOrderRequest struct {
	ClientID   string
	MarketID   string
	Side       domain.Side
	Action     string // "buy" or "sell"
	Type       string // "limit" or "market"
	LimitPrice int    // cents, ignored for market orders
	Units      int
}

// SubmitResult is the exchange's response to an order submission.
type SubmitResult struct {
	ExternalOrderID string
	Status          string // "resting" or "executed"
	FilledCount     int
	ExecutedPrice   int // cents, when any units filled immediately
}

// Exchange is the external exchange collaborator. Implementations handle
// transport, signing, rate limiting, and pagination; callers see complete
// lists and plain values.
type Exchange interface {
	// GetBalance returns cash and position value in cents.
	GetBalance(ctx context.Context) (domain.Balance, error)

	// GetPositions returns the current position snapshot for every market
	// with non-zero exposure. Capital-safety guards must call this fresh at
	// evaluation time.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetOrders returns every exchange order, paginated to completion.
	GetOrders(ctx context.Context) ([]domain.ExchangeOrder, error)

	// GetFills returns every fill, paginated to completion.
	GetFills(ctx context.Context) ([]domain.Fill, error)

	// GetSettlements returns every settlement record, paginated to completion.
	GetSettlements(ctx context.Context) ([]domain.Settlement, error)

	// GetOrderbook returns a depth snapshot for one market.
	GetOrderbook(ctx context.Context, marketID string) (domain.Orderbook, error)

	// GetQuote returns the live bid/ask/last view for one market.
	GetQuote(ctx context.Context, marketID string) (domain.Quote, error)

	// SubmitOrder places an order. Safe to retry with the same ClientID.
	SubmitOrder(ctx context.Context, req SubmitOrderRequest) (SubmitResult, error)

	// CancelOrder cancels a resting order by its exchange id.
	CancelOrder(ctx context.Context, externalOrderID string) error
}
