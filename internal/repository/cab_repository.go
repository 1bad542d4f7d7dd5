package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/dispatch/internal/model"
)

// CabRepository loads cab rows by status — the supply side every
// dispatch stage narrows against demand.
type CabRepository struct {
	pool *pgxpool.Pool
}

// NewCabRepository creates a new cab repository.
func NewCabRepository(pool *pgxpool.Pool) *CabRepository {
	return &CabRepository{pool: pool}
}

// LoadFree returns every cab currently idle — the only cabs the pool
// builder, fallback assigner and relocator are allowed to touch; a cab
// mid-route belongs to the route extender instead.
func (r *CabRepository) LoadFree(ctx context.Context) ([]model.Cab, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, location, seats, remaining_dist, status
		FROM cab
		WHERE status = $1
		ORDER BY id
	`, int(model.CabFree))
	if err != nil {
		return nil, fmt.Errorf("cab repository: load free: %w", err)
	}
	defer rows.Close()

	var cabs []model.Cab
	for rows.Next() {
		var c model.Cab
		if err := rows.Scan(&c.ID, &c.Location, &c.Seats, &c.RemainingDist, &c.Status); err != nil {
			return nil, fmt.Errorf("cab repository: scan: %w", err)
		}
		cabs = append(cabs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cab repository: rows: %w", err)
	}
	return cabs, nil
}
