package lifecycle

// Order lifecycle state machine: drives ledger orders through submission,
// fill tracking, and cancellation. The min-price and hard-cap guards run
// against a position snapshot fetched at guard-evaluation time; stale local
// exposure totals are exactly the failure mode this package exists to avoid.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/ports"
)

// Config holds submission guard settings.
type Config struct {
	MaxPositionPct float64
	MinPriceCents  int
	StaleOrderAge  time.Duration
}

// SubmitSummary is the structured result of one submission pass.
type SubmitSummary struct {
	Examined  int
	Placed    int
	Confirmed int
	Cancelled int
	Queued    int
	Alerts    []string
	Errors    []string
}

// CancelSummary is the structured result of one stale-order pass.
type CancelSummary struct {
	Examined    int
	Cancelled   int
	Blacklisted int
	Alerts      []string
	Errors      []string
}

// Machine submits and cancels ledger orders against the exchange.
type Machine struct {
	ledger   ports.Ledger
	exchange ports.Exchange
	cfg      Config
}

// New creates a Machine.
func New(ledger ports.Ledger, exchange ports.Exchange, cfg Config) *Machine {
	return &Machine{ledger: ledger, exchange: exchange, cfg: cfg}
}

// SubmitPending submits every pending or queued order of the batch.
// Per-order failures are recorded and do not stop the pass; only the loss
// of the batch or balance lookup aborts it.
func (m *Machine) SubmitPending(ctx context.Context, batchID string) (*SubmitSummary, error) {
	summary := &SubmitSummary{}

	batch, err := m.ledger.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.SubmitPending: load batch %s: %w", batchID, err)
	}
	if batch == nil {
		return nil, fmt.Errorf("lifecycle.SubmitPending: batch %s not found", batchID)
	}
	if batch.Paused {
		summary.Alerts = append(summary.Alerts, fmt.Sprintf("batch %s is paused, nothing submitted", batchID))
		return summary, nil
	}

	orders, err := m.ledger.GetSubmittableOrders(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.SubmitPending: load orders: %w", err)
	}

	for _, o := range orders {
		summary.Examined++
		if err := m.submitOne(ctx, o, summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("order %s (%s): %v", o.ID, o.MarketID, err))
		}
	}

	slog.Info("lifecycle: submission pass done",
		"batch", batchID,
		"examined", summary.Examined,
		"placed", summary.Placed,
		"confirmed", summary.Confirmed,
		"cancelled", summary.Cancelled,
		"queued", summary.Queued,
	)
	return summary, nil
}

// submitOne ejecuta ambos guards y, si pasan, envía la orden.
func (m *Machine) submitOne(ctx context.Context, o domain.Order, summary *SubmitSummary) error {
	// Min-price guard: never retried at the same price, so this is a
	// cancel, not a queue.
	if o.LimitPrice < m.cfg.MinPriceCents {
		o.Placement = domain.PlacementCancelled
		o.StateReason = fmt.Sprintf("limit price %d¢ below floor %d¢", o.LimitPrice, m.cfg.MinPriceCents)
		summary.Cancelled++
		return m.ledger.SaveOrder(ctx, o)
	}

	// Hard-cap guard. Exposure is re-read from the exchange here, at
	// guard-evaluation time: overlapping passes make any earlier figure
	// unsafe.
	balance, err := m.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}

	hardCap := domain.HardCap(balance.PortfolioValue(), m.cfg.MaxPositionPct)
	cost := o.Units * o.LimitPrice

	eventMarkets, err := m.ledger.MarketsForEvent(ctx, o.EventID)
	if err != nil {
		return fmt.Errorf("markets for event: %w", err)
	}

	marketExposure := domain.MarketExposure(positions, o.MarketID)
	eventExposure := domain.EventExposure(positions, eventMarkets)

	if marketExposure+cost > hardCap || eventExposure+cost > hardCap {
		// Headroom may open later (settlements, cancels): queue, don't kill.
		o.Placement = domain.PlacementQueued
		o.StateReason = fmt.Sprintf("hard cap: market %d¢ + order %d¢ > cap %d¢", marketExposure, cost, hardCap)
		summary.Queued++
		slog.Warn("lifecycle: hard cap guard queued order",
			"order", o.ID, "market", o.MarketID,
			"market_exposure", marketExposure, "event_exposure", eventExposure,
			"cost", cost, "hard_cap", hardCap)
		return m.ledger.SaveOrder(ctx, o)
	}

	res, err := m.exchange.SubmitOrder(ctx, ports.SubmitOrderRequest{
		ClientID:   o.ID,
		MarketID:   o.MarketID,
		Side:       o.Side,
		Action:     "buy",
		Type:       "limit",
		LimitPrice: o.LimitPrice,
		Units:      o.Units,
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	now := time.Now().UTC()
	o.ExternalOrderID = res.ExternalOrderID
	o.PlacedAt = &now

	if res.FilledCount > 0 {
		// Cost comes from the fill, not the original limit price.
		o.Placement = domain.PlacementConfirmed
		o.ConfirmedAt = &now
		o.FilledUnits = res.FilledCount
		o.ExecutedPrice = res.ExecutedPrice
		o.Cost = res.FilledCount * res.ExecutedPrice
		summary.Confirmed++
	} else {
		o.Placement = domain.PlacementPlaced
		summary.Placed++
	}

	return m.ledger.SaveOrder(ctx, o)
}

// CancelStale cancels resting orders older than the configured age and
// blacklists their markets so the allocator stops re-offering them.
// The exchange cancel runs before the local state change; if it fails
// because the order already filled or was cancelled, the next
// reconciliation pass resolves the true state.
func (m *Machine) CancelStale(ctx context.Context) (*CancelSummary, error) {
	summary := &CancelSummary{}

	placed, err := m.ledger.GetPlacedOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.CancelStale: load placed orders: %w", err)
	}

	cutoff := time.Now().UTC().Add(-m.cfg.StaleOrderAge)
	for _, o := range placed {
		summary.Examined++
		if o.PlacedAt == nil || o.PlacedAt.After(cutoff) {
			continue
		}

		if err := m.exchange.CancelOrder(ctx, o.ExternalOrderID); err != nil {
			summary.Alerts = append(summary.Alerts,
				fmt.Sprintf("cancel %s failed, left for reconciliation: %v", o.ExternalOrderID, err))
			continue
		}

		o.Placement = domain.PlacementCancelled
		o.StateReason = fmt.Sprintf("stale: resting since %s", o.PlacedAt.Format(time.RFC3339))
		if err := m.ledger.SaveOrder(ctx, o); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("save %s: %v", o.ID, err))
			continue
		}
		summary.Cancelled++

		entry := domain.BlacklistEntry{
			MarketID:  o.MarketID,
			Reason:    "stale resting order",
			CreatedAt: time.Now().UTC(),
		}
		if err := m.ledger.SaveBlacklistEntry(ctx, entry); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("blacklist %s: %v", o.MarketID, err))
			continue
		}
		summary.Blacklisted++

		slog.Info("lifecycle: cancelled stale order",
			"order", o.ID, "market", o.MarketID, "resting_since", o.PlacedAt)
	}

	return summary, nil
}
