package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/dispatch/internal/model"
)

// RouteRepository loads the legs of in-progress routes for the Route
// Extender to scan for insertion points.
type RouteRepository struct {
	pool *pgxpool.Pool
}

// NewRouteRepository creates a new route repository.
func NewRouteRepository(pool *pgxpool.Pool) *RouteRepository {
	return &RouteRepository{pool: pool}
}

// LoadActiveLegs returns every leg belonging to a route that has not
// completed, ordered by (route_id, place) ascending — the ordering the
// extender's eligibility scan relies on to detect route boundaries.
func (r *RouteRepository) LoadActiveLegs(ctx context.Context) ([]model.Leg, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT leg.id, leg.route_id, leg.place, leg.from_stop, leg.to_stop,
		       leg.distance, leg.status, leg.started, leg.completed,
		       leg.passengers, leg.reserve
		FROM leg
		JOIN route ON route.id = leg.route_id
		WHERE route.status != $1
		ORDER BY leg.route_id, leg.place
	`, int(model.RouteCompleted))
	if err != nil {
		return nil, fmt.Errorf("route repository: load active legs: %w", err)
	}
	defer rows.Close()

	var legs []model.Leg
	for rows.Next() {
		var l model.Leg
		if err := rows.Scan(&l.ID, &l.RouteID, &l.Place, &l.From, &l.To,
			&l.Dist, &l.Status, &l.Started, &l.Completed, &l.Passengers, &l.Reserve); err != nil {
			return nil, fmt.Errorf("route repository: scan: %w", err)
		}
		legs = append(legs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("route repository: rows: %w", err)
	}
	return legs, nil
}
