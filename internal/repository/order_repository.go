package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/dispatch/internal/model"
)

// OrderRepository loads and expires taxi_order rows. Grounded on
// BookingRepository's transaction/row-locking shape, narrowed to the
// two queries the dispatch tick actually needs: the pending backlog and
// stale-order expiry.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// LoadPending returns every order still waiting for a route, cab or leg
// assignment — the demand set each tick's Extender/Pool/Assign stages
// consume and narrow.
func (r *OrderRepository) LoadPending(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, from_stand, to_stand, max_wait, max_loss, distance, shared,
		       in_pool, status, route_id, leg_id, cab_id, received, started,
		       completed, at_time, eta
		FROM taxi_order
		WHERE status = $1
		ORDER BY received
	`, int(model.OrderReceived))
	if err != nil {
		return nil, fmt.Errorf("order repository: load pending: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.From, &o.To, &o.MaxWait, &o.MaxLoss, &o.Dist, &o.Shared,
			&o.InPool, &o.Status, &o.RouteID, &o.LegID, &o.CabID, &o.Received, &o.Started,
			&o.Completed, &o.AtTime, &o.ETA); err != nil {
			return nil, fmt.Errorf("order repository: scan: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order repository: rows: %w", err)
	}
	return orders, nil
}

// ExpireOlderThan locks and expires every still-pending order whose
// received timestamp is older than maxAge, returning how many were
// expired. Uses SELECT ... FOR UPDATE SKIP LOCKED so a slow concurrent
// tick never blocks this sweep — an expiry pass is allowed to miss a
// row this cycle and catch it next cycle instead of stalling.
func (r *OrderRepository) ExpireOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("order repository: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM taxi_order
		WHERE status = $1 AND received < $2
		FOR UPDATE SKIP LOCKED
	`, int(model.OrderReceived), time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("order repository: select expired: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("order repository: scan expired: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE taxi_order SET status = $1 WHERE id = ANY($2)
	`, int(model.OrderRefused), ids); err != nil {
		return 0, fmt.Errorf("order repository: expire: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("order repository: commit: %w", err)
	}
	return len(ids), nil
}
