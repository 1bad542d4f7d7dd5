package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/dispatch/internal/model"
)

// StatRepository accumulates named tick-level counters into the stat
// table (the engine records orders received and orders left unmatched).
type StatRepository struct {
	pool *pgxpool.Pool
}

// NewStatRepository creates a new stat repository.
func NewStatRepository(pool *pgxpool.Pool) *StatRepository {
	return &StatRepository{pool: pool}
}

// Increment adds each stat's IntVal to its named counter, creating the row on first
// use (upsert), matching the teacher's "fire and forget" tolerance for
// stats — a failed increment is logged by the caller, never fatal.
func (r *StatRepository) Increment(ctx context.Context, stats []model.Stat) error {
	if len(stats) == 0 {
		return nil
	}
	batch := make([][2]any, 0, len(stats))
	for _, s := range stats {
		batch = append(batch, [2]any{s.Name, s.IntVal})
	}
	for _, row := range batch {
		if _, err := r.pool.Exec(ctx, `
			INSERT INTO stat (name, int_val) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET int_val = stat.int_val + EXCLUDED.int_val
		`, row[0], row[1]); err != nil {
			return fmt.Errorf("stat repository: increment %v: %w", row[0], err)
		}
	}
	return nil
}
