package reconcile

// Reconciliation engine: makes the ledger agree with exchange truth after
// any submission, crash, or missed update. Idempotent: a second run with
// unchanged exchange data performs zero writes.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/ports"
)

// Summary is the structured result of one reconciliation pass.
type Summary struct {
	Examined    int
	Confirmed   int
	Downgraded  int // stale confirmed flags reset to placed
	Closed      int
	Settled     int
	FeesUpdated int
	NotFound    int
	OrphanFills int
	Writes      int
	Alerts      []string
	Errors      []string
}

// Engine aligns the ledger with the exchange's execution records.
type Engine struct {
	ledger   ports.Ledger
	exchange ports.Exchange
}

// New creates an Engine.
func New(ledger ports.Ledger, exchange ports.Exchange) *Engine {
	return &Engine{ledger: ledger, exchange: exchange}
}

// Run executes one reconciliation pass. Losing an entire exchange listing
// aborts the pass; per-order problems are recorded and skipped.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	exOrders, err := e.exchange.GetOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile.Run: list orders: %w", err)
	}
	fills, err := e.exchange.GetFills(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile.Run: list fills: %w", err)
	}
	settlements, err := e.exchange.GetSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile.Run: list settlements: %w", err)
	}

	tracked, err := e.ledger.GetTrackedOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile.Run: load tracked orders: %w", err)
	}

	ordersByExternal := make(map[string]domain.ExchangeOrder, len(exOrders))
	for _, eo := range exOrders {
		ordersByExternal[eo.ExternalID] = eo
	}
	fillsByExternal := make(map[string][]domain.Fill)
	for _, f := range fills {
		fillsByExternal[f.ExternalOrderID] = append(fillsByExternal[f.ExternalOrderID], f)
	}
	settlementByMarket := make(map[string]domain.Settlement, len(settlements))
	for _, s := range settlements {
		settlementByMarket[s.MarketID] = s
	}

	knownExternal := make(map[string]bool, len(tracked))
	for _, o := range tracked {
		knownExternal[o.ExternalOrderID] = true
	}
	for externalID := range fillsByExternal {
		if !knownExternal[externalID] {
			summary.OrphanFills++
			summary.Alerts = append(summary.Alerts,
				fmt.Sprintf("orphaned fills for exchange order %s: no ledger row", externalID))
		}
	}

	for _, o := range tracked {
		summary.Examined++

		updated := o
		e.reconcilePlacement(&updated, ordersByExternal, fillsByExternal, summary)
		e.reconcileSettlement(&updated, settlementByMarket, summary)

		if updated == o {
			continue
		}
		if err := e.ledger.SaveOrder(ctx, updated); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("save %s: %v", o.ID, err))
			continue
		}
		summary.Writes++
	}

	slog.Info("reconcile: pass done",
		"examined", summary.Examined,
		"confirmed", summary.Confirmed,
		"downgraded", summary.Downgraded,
		"closed", summary.Closed,
		"settled", summary.Settled,
		"not_found", summary.NotFound,
		"writes", summary.Writes,
	)
	return summary, nil
}

// reconcilePlacement aligns placement state and fill figures with the
// exchange's orders and fills.
func (e *Engine) reconcilePlacement(o *domain.Order,
	orders map[string]domain.ExchangeOrder, fills map[string][]domain.Fill, summary *Summary) {

	orderFills := fills[o.ExternalOrderID]
	exOrder, exists := orders[o.ExternalOrderID]

	if len(orderFills) > 0 {
		units, avgPrice := aggregateFills(orderFills)
		// Fill reporting can lag the order's own counters; trust whichever
		// reports more.
		if exists && exOrder.FilledCount > units {
			units = exOrder.FilledCount
			if avgPrice == 0 {
				avgPrice = exOrder.Price
			}
		}
		if o.Placement != domain.PlacementConfirmed || o.FilledUnits != units || o.ExecutedPrice != avgPrice {
			if o.Placement != domain.PlacementConfirmed {
				summary.Confirmed++
			}
			o.Placement = domain.PlacementConfirmed
			o.FilledUnits = units
			o.ExecutedPrice = avgPrice
			o.Cost = units * avgPrice
			if o.ConfirmedAt == nil {
				now := time.Now().UTC()
				o.ConfirmedAt = &now
			}
		}
		return
	}

	if !exists {
		// Either an exchange-side expiry the ledger never saw or an id
		// typo: surfaced, never auto-corrected.
		summary.NotFound++
		summary.Alerts = append(summary.Alerts,
			fmt.Sprintf("order %s (%s): exchange has no record of %s",
				o.ID, o.MarketID, o.ExternalOrderID))
		return
	}

	switch {
	case exOrder.Resting():
		if o.Placement == domain.PlacementConfirmed {
			// A confirmed flag with no fills behind it is stale.
			summary.Downgraded++
			o.Placement = domain.PlacementPlaced
			o.FilledUnits = 0
			o.ExecutedPrice = 0
			o.Cost = 0
			o.ConfirmedAt = nil
		} else if o.Placement != domain.PlacementPlaced {
			o.Placement = domain.PlacementPlaced
		}
	case exOrder.Terminal():
		if o.Placement != domain.PlacementCancelled || o.Settlement != domain.SettlementClosed {
			o.Placement = domain.PlacementCancelled
			if o.Settlement != domain.SettlementSuccess {
				o.Settlement = domain.SettlementClosed
			}
			o.StateReason = "exchange reports " + exOrder.Status
			summary.Closed++
		}
	}
}

// reconcileSettlement applies result and settlement records to confirmed
// orders. Fees can be back-filled after initial settlement, so the fee is
// refreshed whenever it differs.
func (e *Engine) reconcileSettlement(o *domain.Order,
	settlements map[string]domain.Settlement, summary *Summary) {

	if o.Placement != domain.PlacementConfirmed {
		return
	}
	s, ok := settlements[o.MarketID]
	if !ok {
		return
	}

	won := o.Side == s.ResultSide
	firstObservation := o.Result == domain.ResultUndecided

	if firstObservation {
		if won {
			o.Result = domain.ResultWon
		} else {
			o.Result = domain.ResultLost
		}
		summary.Settled++
	}

	if won {
		if o.Settlement != domain.SettlementSuccess || o.ActualPayout != s.Revenue {
			o.Settlement = domain.SettlementSuccess
			o.ActualPayout = s.Revenue
		}
	} else if o.Settlement != domain.SettlementClosed {
		o.Settlement = domain.SettlementClosed
	}

	if o.SettledAt == nil {
		t := s.SettledAt
		if t.IsZero() {
			t = time.Now().UTC()
		}
		o.SettledAt = &t
	}

	if o.Fee != s.Fee {
		o.Fee = s.Fee
		if !firstObservation {
			summary.FeesUpdated++
		}
	}
}

// aggregateFills devuelve las unidades totales ejecutadas y el precio medio
// ponderado por volumen, redondeado al centavo más cercano.
func aggregateFills(fills []domain.Fill) (units, avgPrice int) {
	volume := 0
	for _, f := range fills {
		units += f.Count
		volume += f.Count * f.Price
	}
	if units == 0 {
		return 0, 0
	}
	return units, (volume + units/2) / units
}
