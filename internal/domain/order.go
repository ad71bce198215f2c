package domain

import (
	"fmt"
	"time"
)

// Side is one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// PlacementState tracks an order from creation to exchange acknowledgement.
type PlacementState string

const (
	PlacementPending   PlacementState = "pending"
	PlacementQueued    PlacementState = "queued" // guard re-queue, retried on a later pass
	PlacementPlaced    PlacementState = "placed"
	PlacementConfirmed PlacementState = "confirmed"
	PlacementCancelled PlacementState = "cancelled"
)

// ResultState is the market outcome as it applies to this order.
type ResultState string

const (
	ResultUndecided ResultState = "undecided"
	ResultWon       ResultState = "won"
	ResultLost      ResultState = "lost"
)

// SettlementState tracks payout realization after a result is known.
type SettlementState string

const (
	SettlementPending SettlementState = "pending"
	SettlementClosed  SettlementState = "closed"
	SettlementSuccess SettlementState = "success"
)

// Order is one attempted or realized position in one market.
// All monetary fields are integer cents; prices are 1–99 inclusive.
type Order struct {
	ID              string // local UUID, doubles as the idempotent client order id
	BatchID         string
	MarketID        string
	EventID         string // groups mutually exclusive markets of one occurrence
	Side            Side
	LimitPrice      int // cents
	Units           int
	Cost            int // units × executed price once confirmed
	PotentialPayout int // units × 100
	Fee             int
	ActualPayout    int

	Placement  PlacementState
	Result     ResultState
	Settlement SettlementState

	ExternalOrderID string // empty until submitted
	StateReason     string // human-readable reason for cancel/queue transitions

	ExecutedPrice int // cents, volume-weighted once fills are known
	FilledUnits   int

	StopLossExit  bool
	ExitPrice     int // cents paid per contract at protective exit
	ExitedAt      *time.Time
	CreatedAt     time.Time
	PlacedAt      *time.Time
	ConfirmedAt   *time.Time
	SettledAt     *time.Time
}

// NewOrder creates a pending order for one market.
func NewOrder(id, batchID, marketID, eventID string, side Side, limitPrice, units int) Order {
	return Order{
		ID:              id,
		BatchID:         batchID,
		MarketID:        marketID,
		EventID:         eventID,
		Side:            side,
		LimitPrice:      limitPrice,
		Units:           units,
		PotentialPayout: units * 100,
		Placement:       PlacementPending,
		Result:          ResultUndecided,
		Settlement:      SettlementPending,
		CreatedAt:       time.Now().UTC(),
	}
}

// Open reports whether the order is a live, undecided exposure.
func (o *Order) Open() bool {
	return o.Placement == PlacementConfirmed && o.Result == ResultUndecided && !o.StopLossExit
}

// Submittable reports whether the order can still be sent to the exchange.
func (o *Order) Submittable() bool {
	return o.Placement == PlacementPending || o.Placement == PlacementQueued
}

// Validate checks the invariants every persisted order must hold.
func (o *Order) Validate() error {
	if o.Units < 0 {
		return fmt.Errorf("order %s: negative units %d", o.ID, o.Units)
	}
	if o.Cost < 0 {
		return fmt.Errorf("order %s: negative cost %d", o.ID, o.Cost)
	}
	if o.LimitPrice < 1 || o.LimitPrice > 99 {
		return fmt.Errorf("order %s: limit price %d outside 1–99", o.ID, o.LimitPrice)
	}
	if o.Result != ResultUndecided && o.Placement != PlacementConfirmed {
		return fmt.Errorf("order %s: result %s on non-confirmed order", o.ID, o.Result)
	}
	if o.Settlement == SettlementSuccess && o.Result != ResultWon {
		return fmt.Errorf("order %s: settlement success without win", o.ID)
	}
	return nil
}

// Batch is a cohort of orders created together by one allocation run.
type Batch struct {
	ID                   string
	AllocationKey        string // idempotent identity, e.g. one batch per day
	TotalCost            int
	TotalPotentialPayout int
	Paused               bool
	CreatedAt            time.Time
}

// BlacklistEntry flags a market as illiquid or unfillable.
type BlacklistEntry struct {
	MarketID  string
	Reason    string
	CreatedAt time.Time
}
