package ports

import (
	"context"
	"time"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
)

// Ledger is the persisted record of every local order and its lifecycle
// state. Writes are keyed by order id; implementations must refuse to
// regress settlement_state from success.
type Ledger interface {
	// SaveOrder inserts or replaces an order row.
	SaveOrder(ctx context.Context, o domain.Order) error

	// GetOrder returns one order by local id.
	GetOrder(ctx context.Context, id string) (domain.Order, error)

	// GetOrdersByBatch returns every order of a batch.
	GetOrdersByBatch(ctx context.Context, batchID string) ([]domain.Order, error)

	// GetSubmittableOrders returns pending and queued orders for a batch.
	GetSubmittableOrders(ctx context.Context, batchID string) ([]domain.Order, error)

	// GetPlacedOrders returns orders resting on the exchange.
	GetPlacedOrders(ctx context.Context) ([]domain.Order, error)

	// GetOpenOrders returns confirmed, undecided, non-exited orders.
	GetOpenOrders(ctx context.Context) ([]domain.Order, error)

	// GetTrackedOrders returns every order with an external id that is not
	// yet settled, for reconciliation.
	GetTrackedOrders(ctx context.Context) ([]domain.Order, error)

	// MarketsForEvent returns the distinct market ids the ledger has seen
	// for an event.
	MarketsForEvent(ctx context.Context, eventID string) ([]string, error)

	// SaveBatch inserts a batch.
	SaveBatch(ctx context.Context, b domain.Batch) error

	// GetBatchByKey returns the batch for an allocation key, if any.
	GetBatchByKey(ctx context.Context, key string) (*domain.Batch, error)

	// GetBatch returns a batch by id.
	GetBatch(ctx context.Context, id string) (*domain.Batch, error)

	// SaveBlacklistEntry records a market as illiquid/unfillable.
	SaveBlacklistEntry(ctx context.Context, e domain.BlacklistEntry) error

	// BlacklistedSince returns market ids blacklisted after the cutoff.
	BlacklistedSince(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Notifier renders pass results for the operator.
type Notifier interface {
	PrintAllocation(batch domain.Batch, orders []domain.Order, skipped int, remainder int)
	PrintPassSummary(name string, counts map[string]int, alerts, errs []string)
}
