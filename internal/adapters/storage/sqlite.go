package storage

// sqlite.go — el libro de órdenes.
//
// Tablas:
//   - `orders`: cada orden local y su estado de ciclo de vida.
//   - `batches`: una fila por pase de asignación, con clave idempotente
//     (UNIQUE) — imposible asignar dos veces el mismo día.
//   - `blacklist`: mercados marcados ilíquidos/no ejecutables.
//
// Todo el dinero en centavos enteros. settlement_state nunca retrocede
// desde 'success'; el guard está en el propio UPDATE.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                TEXT PRIMARY KEY,   -- UUID local, sirve también de client order id
    batch_id          TEXT NOT NULL,
    market_id         TEXT NOT NULL,
    event_id          TEXT NOT NULL,
    side              TEXT NOT NULL,      -- yes / no
    limit_price       INTEGER NOT NULL,
    units             INTEGER NOT NULL DEFAULT 0,
    cost              INTEGER NOT NULL DEFAULT 0,
    potential_payout  INTEGER NOT NULL DEFAULT 0,
    fee               INTEGER NOT NULL DEFAULT 0,
    actual_payout     INTEGER NOT NULL DEFAULT 0,
    placement_state   TEXT NOT NULL DEFAULT 'pending',
    result_state      TEXT NOT NULL DEFAULT 'undecided',
    settlement_state  TEXT NOT NULL DEFAULT 'pending',
    external_order_id TEXT NOT NULL DEFAULT '',
    state_reason      TEXT NOT NULL DEFAULT '',
    executed_price    INTEGER NOT NULL DEFAULT 0,
    filled_units      INTEGER NOT NULL DEFAULT 0,
    stop_loss_exit    INTEGER NOT NULL DEFAULT 0,
    exit_price        INTEGER NOT NULL DEFAULT 0,
    exited_at         DATETIME,
    created_at        DATETIME NOT NULL,
    placed_at         DATETIME,
    confirmed_at      DATETIME,
    settled_at        DATETIME
);

CREATE INDEX IF NOT EXISTS orders_batch     ON orders(batch_id);
CREATE INDEX IF NOT EXISTS orders_market    ON orders(market_id);
CREATE INDEX IF NOT EXISTS orders_event     ON orders(event_id);
CREATE INDEX IF NOT EXISTS orders_placement ON orders(placement_state);

CREATE TABLE IF NOT EXISTS batches (
    id                     TEXT PRIMARY KEY,
    allocation_key         TEXT NOT NULL UNIQUE,
    total_cost             INTEGER NOT NULL DEFAULT 0,
    total_potential_payout INTEGER NOT NULL DEFAULT 0,
    paused                 INTEGER NOT NULL DEFAULT 0,
    created_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS blacklist (
    market_id  TEXT NOT NULL,
    reason     TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS blacklist_market ON blacklist(market_id);
CREATE INDEX IF NOT EXISTS blacklist_at     ON blacklist(created_at DESC);
`

// SQLiteLedger implements ports.Ledger using SQLite (pure Go, no CGo).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) the database at the given path.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// ─── Orders ──────────────────────────────────────────────────────────────────

// SaveOrder inserts or replaces an order row. Settlement state is kept at
// 'success' even if the incoming row would downgrade it.
func (s *SQLiteLedger) SaveOrder(ctx context.Context, o domain.Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("storage.SaveOrder: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		  (id, batch_id, market_id, event_id, side, limit_price, units, cost,
		   potential_payout, fee, actual_payout, placement_state, result_state,
		   settlement_state, external_order_id, state_reason, executed_price,
		   filled_units, stop_loss_exit, exit_price, exited_at, created_at,
		   placed_at, confirmed_at, settled_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  batch_id          = excluded.batch_id,
		  market_id         = excluded.market_id,
		  event_id          = excluded.event_id,
		  side              = excluded.side,
		  limit_price       = excluded.limit_price,
		  units             = excluded.units,
		  cost              = excluded.cost,
		  potential_payout  = excluded.potential_payout,
		  fee               = excluded.fee,
		  actual_payout     = excluded.actual_payout,
		  placement_state   = excluded.placement_state,
		  result_state      = excluded.result_state,
		  settlement_state  = CASE WHEN orders.settlement_state = 'success'
		                           THEN orders.settlement_state
		                           ELSE excluded.settlement_state END,
		  external_order_id = excluded.external_order_id,
		  state_reason      = excluded.state_reason,
		  executed_price    = excluded.executed_price,
		  filled_units      = excluded.filled_units,
		  stop_loss_exit    = excluded.stop_loss_exit,
		  exit_price        = excluded.exit_price,
		  exited_at         = excluded.exited_at,
		  placed_at         = excluded.placed_at,
		  confirmed_at      = excluded.confirmed_at,
		  settled_at        = excluded.settled_at`,
		o.ID, o.BatchID, o.MarketID, o.EventID, string(o.Side), o.LimitPrice,
		o.Units, o.Cost, o.PotentialPayout, o.Fee, o.ActualPayout,
		string(o.Placement), string(o.Result), string(o.Settlement),
		o.ExternalOrderID, o.StateReason, o.ExecutedPrice, o.FilledUnits,
		boolToInt(o.StopLossExit), o.ExitPrice, nullTime(o.ExitedAt),
		o.CreatedAt.UTC(), nullTime(o.PlacedAt), nullTime(o.ConfirmedAt),
		nullTime(o.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder returns one order by local id.
func (s *SQLiteLedger) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	orders, err := s.queryOrders(ctx, `WHERE id=?`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("storage.GetOrder: %s: %w", id, sql.ErrNoRows)
	}
	return orders[0], nil
}

// GetOrdersByBatch returns every order of a batch.
func (s *SQLiteLedger) GetOrdersByBatch(ctx context.Context, batchID string) ([]domain.Order, error) {
	return s.queryOrders(ctx, `WHERE batch_id=?`, batchID)
}

// GetSubmittableOrders returns pending and queued orders for a batch.
func (s *SQLiteLedger) GetSubmittableOrders(ctx context.Context, batchID string) ([]domain.Order, error) {
	return s.queryOrders(ctx,
		`WHERE batch_id=? AND placement_state IN ('pending','queued')`, batchID)
}

// GetPlacedOrders returns orders resting on the exchange.
func (s *SQLiteLedger) GetPlacedOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx, `WHERE placement_state='placed'`)
}

// GetOpenOrders returns confirmed, undecided, non-exited orders, the live
// exposures the stop-loss monitor watches.
func (s *SQLiteLedger) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx,
		`WHERE placement_state='confirmed' AND result_state='undecided' AND stop_loss_exit=0`)
}

// GetTrackedOrders returns every order with an external id not yet settled.
func (s *SQLiteLedger) GetTrackedOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx,
		`WHERE external_order_id != '' AND settlement_state != 'success'`)
}

// MarketsForEvent returns the distinct markets the ledger has seen for an event.
func (s *SQLiteLedger) MarketsForEvent(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT market_id FROM orders WHERE event_id=?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("storage.MarketsForEvent: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteLedger) queryOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	q := `SELECT id, batch_id, market_id, event_id, side, limit_price, units, cost,
	             potential_payout, fee, actual_payout, placement_state, result_state,
	             settlement_state, external_order_id, state_reason, executed_price,
	             filled_units, stop_loss_exit, exit_price, exited_at, created_at,
	             placed_at, confirmed_at, settled_at
	      FROM orders ` + where + ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryOrders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(rows *sql.Rows) (domain.Order, error) {
	var o domain.Order
	var side, placement, result, settlement string
	var stopLoss int
	var exitedAt, placedAt, confirmedAt, settledAt sql.NullString

	err := rows.Scan(
		&o.ID, &o.BatchID, &o.MarketID, &o.EventID, &side, &o.LimitPrice,
		&o.Units, &o.Cost, &o.PotentialPayout, &o.Fee, &o.ActualPayout,
		&placement, &result, &settlement, &o.ExternalOrderID, &o.StateReason,
		&o.ExecutedPrice, &o.FilledUnits, &stopLoss, &o.ExitPrice,
		&exitedAt, &o.CreatedAt, &placedAt, &confirmedAt, &settledAt,
	)
	if err != nil {
		return o, err
	}

	o.Side = domain.Side(side)
	o.Placement = domain.PlacementState(placement)
	o.Result = domain.ResultState(result)
	o.Settlement = domain.SettlementState(settlement)
	o.StopLossExit = stopLoss != 0
	o.ExitedAt = parseNullTime(exitedAt)
	o.PlacedAt = parseNullTime(placedAt)
	o.ConfirmedAt = parseNullTime(confirmedAt)
	o.SettledAt = parseNullTime(settledAt)
	return o, nil
}

// ─── Batches ─────────────────────────────────────────────────────────────────

// SaveBatch inserts a batch. The allocation key is UNIQUE: a second batch for
// the same key fails, which is what makes double-allocation impossible.
func (s *SQLiteLedger) SaveBatch(ctx context.Context, b domain.Batch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, allocation_key, total_cost, total_potential_payout, paused, created_at)
		VALUES (?,?,?,?,?,?)`,
		b.ID, b.AllocationKey, b.TotalCost, b.TotalPotentialPayout,
		boolToInt(b.Paused), b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveBatch %s: %w", b.AllocationKey, err)
	}
	return nil
}

// GetBatchByKey returns the batch for an allocation key, nil if none exists.
func (s *SQLiteLedger) GetBatchByKey(ctx context.Context, key string) (*domain.Batch, error) {
	return s.getBatch(ctx, `WHERE allocation_key=?`, key)
}

// GetBatch returns a batch by id, nil if none exists.
func (s *SQLiteLedger) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return s.getBatch(ctx, `WHERE id=?`, id)
}

func (s *SQLiteLedger) getBatch(ctx context.Context, where string, arg any) (*domain.Batch, error) {
	var b domain.Batch
	var paused int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, allocation_key, total_cost, total_potential_payout, paused, created_at
		FROM batches `+where, arg).Scan(
		&b.ID, &b.AllocationKey, &b.TotalCost, &b.TotalPotentialPayout, &paused, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.getBatch: %w", err)
	}
	b.Paused = paused != 0
	return &b, nil
}

// ─── Blacklist ───────────────────────────────────────────────────────────────

// SaveBlacklistEntry records a market as illiquid/unfillable.
func (s *SQLiteLedger) SaveBlacklistEntry(ctx context.Context, e domain.BlacklistEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blacklist (market_id, reason, created_at) VALUES (?,?,?)`,
		e.MarketID, e.Reason, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveBlacklistEntry %s: %w", e.MarketID, err)
	}
	return nil
}

// BlacklistedSince returns the distinct market ids blacklisted after cutoff.
func (s *SQLiteLedger) BlacklistedSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT market_id FROM blacklist WHERE created_at >= ?`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.BlacklistedSince: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, _ := time.Parse(time.RFC3339, ns.String)
	if t.IsZero() {
		t, _ = time.Parse("2006-01-02 15:04:05", ns.String)
	}
	if t.IsZero() {
		return nil
	}
	return &t
}
