package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/dispatch/internal/model"
)

// FreeTaxiOrderRepository loads and consumes freetaxi_order rows — the
// one-shot, customer-pinned-cab requests described in spec §6. Unlike
// OrderRepository, rows here are deleted outright once handled rather
// than transitioned through a status column; the table only ever holds
// unconsumed requests.
type FreeTaxiOrderRepository struct {
	pool *pgxpool.Pool
}

// NewFreeTaxiOrderRepository creates a new freetaxi_order repository.
func NewFreeTaxiOrderRepository(pool *pgxpool.Pool) *FreeTaxiOrderRepository {
	return &FreeTaxiOrderRepository{pool: pool}
}

// LoadPending returns every outstanding freetaxi_order row.
func (r *FreeTaxiOrderRepository) LoadPending(ctx context.Context) ([]model.FreeTaxiOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, cab_id, from_stand, to_stand, max_loss, shared, received
		FROM freetaxi_order
		ORDER BY received
	`)
	if err != nil {
		return nil, fmt.Errorf("freetaxi order repository: load pending: %w", err)
	}
	defer rows.Close()

	var orders []model.FreeTaxiOrder
	for rows.Next() {
		var o model.FreeTaxiOrder
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.CabID, &o.From, &o.To, &o.MaxLoss, &o.Shared, &o.Received); err != nil {
			return nil, fmt.Errorf("freetaxi order repository: scan: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("freetaxi order repository: rows: %w", err)
	}
	return orders, nil
}
