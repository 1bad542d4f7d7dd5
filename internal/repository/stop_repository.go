// Package repository provides pgx-backed persistence for the dispatch
// domain's entities (stops, orders, cabs, routes, legs, stats).
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/dispatch/internal/model"
)

// StopRepository loads the fixed stop network the distance oracle and
// every dispatch stage are built against.
type StopRepository struct {
	pool *pgxpool.Pool
}

// NewStopRepository creates a new stop repository.
func NewStopRepository(pool *pgxpool.Pool) *StopRepository {
	return &StopRepository{pool: pool}
}

// LoadAll returns every stop in ID order — callers that build a
// geo.Matrix or a stop-by-ID lookup map depend on a complete set being
// read once at startup (or on each tick, if stops can change at
// runtime).
func (r *StopRepository) LoadAll(ctx context.Context) ([]model.Stop, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, latitude, longitude, bearing, capacity
		FROM stop
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("stop repository: load all: %w", err)
	}
	defer rows.Close()

	var stops []model.Stop
	for rows.Next() {
		var s model.Stop
		if err := rows.Scan(&s.ID, &s.Lat, &s.Lon, &s.Bearing, &s.Capacity); err != nil {
			return nil, fmt.Errorf("stop repository: scan: %w", err)
		}
		stops = append(stops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stop repository: rows: %w", err)
	}
	return stops, nil
}

// ByID indexes a slice of stops by ID, the shape every dispatch stage
// needs for bearing/capacity lookups keyed by a leg's From/To field.
func ByID(stops []model.Stop) map[int64]model.Stop {
	out := make(map[int64]model.Stop, len(stops))
	for _, s := range stops {
		out[s.ID] = s
	}
	return out
}
