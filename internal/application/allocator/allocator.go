package allocator

// Capital allocator: turns candidate markets into a batch of fixed-risk
// pending orders under the hard-cap rules. Distribution is spread-first,
// cap-second: an even split across retained candidates, then a one-unit
// top-up loop in liquidity order while capital and cap headroom remain.

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/ports"
)

// Config holds allocation rules.
type Config struct {
	MaxPositionPct    float64 // hard cap as a fraction of portfolio value
	MinPriceCents     int     // price floor: only near-certain favorites
	MinLiquidityScore float64 // 0–100
	BlacklistWindow   time.Duration
}

// Allocation is the decision for one retained candidate.
type Allocation struct {
	Candidate domain.Candidate
	Units     int
	Cost      int // cents
}

// Result is the structured outcome of one allocation pass.
type Result struct {
	Batch       *domain.Batch
	Orders      []domain.Order
	Allocations []Allocation
	Remainder   int // unallocated cents
	Skipped     map[string]int
	Alerts      []string
	Errors      []string
	Reused      bool // an existing batch for the key was returned untouched
}

// Allocator produces order batches from candidate markets.
type Allocator struct {
	ledger   ports.Ledger
	exchange ports.Exchange
	cfg      Config
}

// New creates an Allocator.
func New(ledger ports.Ledger, exchange ports.Exchange, cfg Config) *Allocator {
	return &Allocator{ledger: ledger, exchange: exchange, cfg: cfg}
}

// Allocate runs one allocation pass for the given key. Idempotent: a second
// call with the same key returns the existing batch and creates nothing.
// Capital and exposure are read fresh from the exchange, never cached.
func (a *Allocator) Allocate(ctx context.Context, key string, candidates []domain.Candidate) (*Result, error) {
	existing, err := a.ledger.GetBatchByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("allocator.Allocate: lookup batch %q: %w", key, err)
	}
	if existing != nil {
		orders, err := a.ledger.GetOrdersByBatch(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("allocator.Allocate: load batch %q: %w", key, err)
		}
		slog.Info("allocator: batch already exists for key, reusing", "key", key, "orders", len(orders))
		return &Result{Batch: existing, Orders: orders, Reused: true}, nil
	}

	balance, err := a.exchange.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocator.Allocate: get balance: %w", err)
	}
	positions, err := a.exchange.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocator.Allocate: get positions: %w", err)
	}

	var blacklisted []string
	if a.cfg.BlacklistWindow > 0 {
		blacklisted, err = a.ledger.BlacklistedSince(ctx, time.Now().Add(-a.cfg.BlacklistWindow))
		if err != nil {
			return nil, fmt.Errorf("allocator.Allocate: load blacklist: %w", err)
		}
	}

	plan := Plan(candidates, balance.Cash, balance.PortfolioValue(), positions, blacklisted, a.cfg)

	batch := domain.Batch{
		ID:            uuid.New().String(),
		AllocationKey: key,
		CreatedAt:     time.Now().UTC(),
	}

	result := &Result{
		Batch:       &batch,
		Allocations: plan.Allocations,
		Remainder:   plan.Remainder,
		Skipped:     plan.Skipped,
	}

	for _, alloc := range plan.Allocations {
		if alloc.Units == 0 {
			continue
		}
		o := domain.NewOrder(
			uuid.New().String(), batch.ID,
			alloc.Candidate.MarketID, alloc.Candidate.EventID,
			alloc.Candidate.Side, alloc.Candidate.Price, alloc.Units,
		)
		if err := a.ledger.SaveOrder(ctx, o); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("save order %s: %v", alloc.Candidate.MarketID, err))
			continue
		}
		batch.TotalCost += alloc.Cost
		batch.TotalPotentialPayout += o.PotentialPayout
		result.Orders = append(result.Orders, o)
	}

	if err := a.ledger.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("allocator.Allocate: save batch %q: %w", key, err)
	}

	slog.Info("allocator: batch created",
		"key", key,
		"candidates", len(candidates),
		"orders", len(result.Orders),
		"total_cost", batch.TotalCost,
		"remainder", plan.Remainder,
	)
	return result, nil
}

// PlanResult is the pure allocation decision, before any persistence.
type PlanResult struct {
	Allocations []Allocation
	Remainder   int
	Skipped     map[string]int
}

// Plan computes allocations for the candidates. Pure: exposure comes only
// from the passed-in position snapshot.
func Plan(candidates []domain.Candidate, availableCapital, portfolioValue int,
	positions []domain.Position, blacklisted []string, cfg Config) PlanResult {

	out := PlanResult{Skipped: make(map[string]int)}

	blacklistSet := make(map[string]bool, len(blacklisted))
	for _, m := range blacklisted {
		blacklistSet[m] = true
	}

	// 1. Blacklist, price floor, liquidity score.
	var screened []domain.Candidate
	for _, c := range candidates {
		switch {
		case blacklistSet[c.MarketID]:
			out.Skipped["blacklisted"]++
		case c.Price < cfg.MinPriceCents:
			out.Skipped["below_price_floor"]++
		case c.LiquidityScore() < cfg.MinLiquidityScore:
			out.Skipped["illiquid"]++
		default:
			screened = append(screened, c)
		}
	}

	// 2. Deduplicate by event: betting both sides of one event guarantees a
	// blended loss, so only the higher-priced favorite survives.
	byEvent := make(map[string]domain.Candidate)
	for _, c := range screened {
		prev, seen := byEvent[c.EventID]
		if !seen || c.Price > prev.Price ||
			(c.Price == prev.Price && c.LiquidityScore() > prev.LiquidityScore()) {
			if seen {
				out.Skipped["event_duplicate"]++
			}
			byEvent[c.EventID] = c
		} else {
			out.Skipped["event_duplicate"]++
		}
	}

	retained := make([]domain.Candidate, 0, len(byEvent))
	for _, c := range byEvent {
		retained = append(retained, c)
	}
	sort.Slice(retained, func(i, j int) bool {
		si, sj := retained[i].LiquidityScore(), retained[j].LiquidityScore()
		if si != sj {
			return si > sj
		}
		return retained[i].MarketID < retained[j].MarketID
	})

	if len(retained) == 0 {
		out.Remainder = availableCapital
		return out
	}

	hardCap := domain.HardCap(portfolioValue, cfg.MaxPositionPct)

	// 3. Per-market cap: event headroom (shared across the group if dedup
	// was bypassed upstream) and market headroom, both minus exposure
	// already held on the exchange. Event exposure is summed over every
	// candidate market of the event, screened-out siblings included.
	// Exposure in markets never offered this pass stays invisible here;
	// the submit-time guard re-checks it against the ledger's full event
	// membership.
	eventCount := make(map[string]int)
	for _, c := range retained {
		eventCount[c.EventID]++
	}
	eventMarkets := make(map[string][]string)
	for _, c := range candidates {
		eventMarkets[c.EventID] = append(eventMarkets[c.EventID], c.MarketID)
	}
	capFor := func(c domain.Candidate) int {
		eventRoom := hardCap - domain.EventExposure(positions, eventMarkets[c.EventID])
		if n := eventCount[c.EventID]; n > 1 {
			eventRoom /= n
		}
		room := hardCap - domain.MarketExposure(positions, c.MarketID)
		if eventRoom < room {
			room = eventRoom
		}
		if room < 0 {
			room = 0
		}
		return room
	}

	// 4. Spread-first pass: even split, capped per market, fillable-depth
	// bounded, highest liquidity first.
	evenSplit := availableCapital / len(retained)
	remaining := availableCapital

	allocated := make([]Allocation, len(retained))
	depthLeft := make([]int, len(retained))
	for i, c := range retained {
		allocated[i] = Allocation{Candidate: c}
		depthLeft[i] = c.DepthAtPrice

		target := evenSplit
		if room := capFor(c); target > room {
			target = room
		}
		if target > remaining {
			target = remaining
		}

		units := target / c.Price
		if units > depthLeft[i] {
			units = depthLeft[i]
		}
		if units <= 0 {
			continue
		}
		allocated[i].Units = units
		allocated[i].Cost = units * c.Price
		depthLeft[i] -= units
		remaining -= allocated[i].Cost
	}

	// 5. Top-up pass: one unit at a time in liquidity order until capital or
	// headroom runs out.
	if remaining > 0 && evenSplit < hardCap {
		progress := true
		for progress && remaining > 0 {
			progress = false
			for i := range allocated {
				c := allocated[i].Candidate
				if c.Price > remaining || depthLeft[i] <= 0 {
					continue
				}
				if allocated[i].Cost+c.Price > capFor(c) {
					continue
				}
				allocated[i].Units++
				allocated[i].Cost += c.Price
				depthLeft[i]--
				remaining -= c.Price
				progress = true
				if remaining <= 0 {
					break
				}
			}
		}
	}

	out.Allocations = allocated
	out.Remainder = remaining
	return out
}
