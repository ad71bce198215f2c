package stoploss

// Protective-exit monitor: evaluates live odds against the stop-loss
// threshold per open position, gated by a data-quality check. Acting on bad
// data can force a real, irreversible loss where none was warranted, so the
// correctness rule is "never sell on data you don't trust", not "always
// sell below threshold".

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/ports"
)

// Config holds stop-loss and data-quality thresholds, all in cents.
type Config struct {
	Threshold        int // exit when our-side price drops below this
	SpreadCeiling    int
	MidTolerance     int
	MinVolume24h     int
	RecheckDelay     time.Duration
	RecheckTolerance int
	BadDataPrices    []int
	SamePriceAnomaly int // distinct positions at one price → suspicious
}

// Summary is the structured result of one monitor pass.
type Summary struct {
	Examined   int
	Exited     int
	Held       int
	Blocked    int // exits prevented by the data-quality gate
	DataAlerts []string
	Alerts     []string
	Errors     []string
}

// Monitor watches open positions and triggers protective exits.
type Monitor struct {
	ledger   ports.Ledger
	exchange ports.Exchange
	cfg      Config

	// sleep is replaced in tests to skip the re-fetch delay.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Monitor.
func New(ledger ports.Ledger, exchange ports.Exchange, cfg Config) *Monitor {
	return &Monitor{
		ledger:   ledger,
		exchange: exchange,
		cfg:      cfg,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		},
	}
}

// Run evaluates every open position once. Per-market failures are recorded
// and do not stop the pass.
func (m *Monitor) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	open, err := m.ledger.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("stoploss.Run: load open orders: %w", err)
	}

	readings := make(map[string]reading, len(open))
	for _, o := range open {
		if _, done := readings[o.MarketID]; done {
			continue
		}
		r, err := m.fetch(ctx, o.MarketID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("fetch %s: %v", o.MarketID, err))
			continue
		}
		readings[o.MarketID] = r
	}

	samePrice := m.samePriceCounts(readings)

	for _, o := range open {
		r, ok := readings[o.MarketID]
		if !ok {
			continue
		}
		summary.Examined++
		m.evaluate(ctx, o, r, samePrice[r.quote.LastPrice], summary)
	}

	slog.Info("stoploss: pass done",
		"examined", summary.Examined,
		"exited", summary.Exited,
		"held", summary.Held,
		"blocked", summary.Blocked,
	)
	return summary, nil
}

// fetch reúne los datos de precio del mercado desde dos fuentes independientes.
func (m *Monitor) fetch(ctx context.Context, marketID string) (reading, error) {
	quote, err := m.exchange.GetQuote(ctx, marketID)
	if err != nil {
		return reading{}, fmt.Errorf("quote: %w", err)
	}
	book, err := m.exchange.GetOrderbook(ctx, marketID)
	if err != nil {
		return reading{}, fmt.Errorf("orderbook: %w", err)
	}
	return reading{quote: quote, book: book}, nil
}

// evaluate applies the decision rule to one position.
func (m *Monitor) evaluate(ctx context.Context, o domain.Order, r reading, samePriceCount int, summary *Summary) {
	ourPrice := domain.SidePrice(r.quote.LastPrice, o.Side)
	if ourPrice >= m.cfg.Threshold {
		summary.Held++
		return
	}

	confidence := m.grade(r, samePriceCount)

	switch confidence {
	case ConfidenceSuspicious:
		summary.Blocked++
		summary.DataAlerts = append(summary.DataAlerts,
			fmt.Sprintf("%s: price %d¢ below threshold but data is suspicious, exit blocked",
				o.MarketID, ourPrice))
		slog.Warn("stoploss: exit blocked by data-quality gate",
			"market", o.MarketID, "our_price", ourPrice, "confidence", confidence.String())
		return

	case ConfidenceLow:
		m.sleep(ctx, m.cfg.RecheckDelay)
		second, err := m.fetch(ctx, o.MarketID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("recheck %s: %v", o.MarketID, err))
			return
		}
		secondPrice := domain.SidePrice(second.quote.LastPrice, o.Side)
		agrees := absInt(secondPrice-ourPrice) <= m.cfg.RecheckTolerance
		if secondPrice >= m.cfg.Threshold || !agrees {
			summary.Blocked++
			summary.DataAlerts = append(summary.DataAlerts,
				fmt.Sprintf("%s: low-confidence reading %d¢ not confirmed on re-fetch (%d¢), exit aborted",
					o.MarketID, ourPrice, secondPrice))
			return
		}
		ourPrice = secondPrice
	}

	m.exit(ctx, o, ourPrice, summary)
}

// exit submits a market sell for the full held quantity and marks the
// ledger row as exited via stop loss.
func (m *Monitor) exit(ctx context.Context, o domain.Order, exitPrice int, summary *Summary) {
	units := o.FilledUnits
	if units == 0 {
		units = o.Units
	}

	_, err := m.exchange.SubmitOrder(ctx, ports.SubmitOrderRequest{
		ClientID: o.ID + "-exit",
		MarketID: o.MarketID,
		Side:     o.Side,
		Action:   "sell",
		Type:     "market",
		Units:    units,
	})
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("exit %s: %v", o.MarketID, err))
		return
	}

	now := time.Now().UTC()
	o.StopLossExit = true
	o.ExitPrice = exitPrice
	o.ExitedAt = &now
	if err := m.ledger.SaveOrder(ctx, o); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("save exit %s: %v", o.ID, err))
		return
	}

	summary.Exited++
	slog.Info("stoploss: position exited",
		"market", o.MarketID,
		"side", o.Side,
		"units", units,
		"entry_price", o.ExecutedPrice,
		"exit_price", exitPrice,
	)
}

// samePriceCounts counts, per last price, the distinct markets reporting it
// with at least one failed quality check. Clean readings sharing a price are
// a normal market (many favorites rest at the same cents); only degraded
// readings converging on one identical price signal a broken feed.
func (m *Monitor) samePriceCounts(readings map[string]reading) map[int]int {
	counts := make(map[int]int, len(readings))
	for _, r := range readings {
		if m.failureCount(r) == 0 {
			continue
		}
		counts[r.quote.LastPrice]++
	}
	return counts
}
