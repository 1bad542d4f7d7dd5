// Package freetaxi implements the one-shot, customer-pinned-cab fast
// path described by spec §6's freetaxi_order table and recovered from
// original_source/src/repo.rs::assign_requests_for_free_cabs (dropped by
// the spec distillation, supplemented back in per SPEC_FULL.md §3).
//
// A freetaxi_order names a specific cab directly rather than going
// through matching or pooling at all: if that cab is still free, it is
// bound to a brand-new single-leg route and taxi_order; if the cab is not
// in the tick's free-cab supply, or an earlier request this tick already
// took it, the request is dropped with a log line and still consumed —
// the Rust original's own "this cab is not free any longer, assigned by
// pool e.g." comment, reproduced here as the ok-but-skip branch below.
package freetaxi

import (
	"log"
	"math"

	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

// Process resolves every pending freetaxi_order against the current
// free-cab supply. It returns the cab list with every pinned, still-free
// cab removed (so no later stage in the same tick can double-book it)
// and the mutation commands needed to realize the accepted requests —
// including a ConsumeFreeTaxiOrders command that deletes every request
// seen this tick, accepted or not, matching the original's
// fetch-then-delete-all-seen semantics (a request that arrived after the
// fetch is simply picked up next tick).
func Process(orders []model.FreeTaxiOrder, cabs []model.Cab, matrix *geo.Matrix) ([]model.Cab, []mutation.Command) {
	if len(orders) == 0 {
		return cabs, nil
	}

	byID := make(map[int64]model.Cab, len(cabs))
	for _, c := range cabs {
		byID[c.ID] = c
	}

	consumed := make(map[int64]bool)
	var cmds []mutation.Command
	ids := make([]string, 0, len(orders))

	for _, o := range orders {
		ids = append(ids, o.ID)

		cab, ok := byID[o.CabID]
		if !ok || consumed[cab.ID] {
			log.Printf("[freetaxi] cab %d no longer free, dropping request %s", o.CabID, o.ID)
			continue
		}
		if cab.Location != o.From {
			log.Printf("[freetaxi] WARNING: cab %d location %d does not match requested pickup %d", cab.ID, cab.Location, o.From)
		}

		dist := matrix.Minutes(o.From, o.To)
		reserve := int(math.Round(float64(o.MaxLoss) / 100.0 * float64(dist)))

		cmds = append(cmds,
			mutation.UpdateCabStatus{CabID: cab.ID, Status: int(model.CabAssigned)},
			mutation.CreateRoute{CabID: cab.ID, Legs: []mutation.InsertLeg{
				{Place: 0, From: o.From, To: o.To, Dist: dist, Reserve: reserve, Passengers: 1},
			}},
			mutation.CreateOrder{
				CustomerID: o.CustomerID,
				From:       o.From,
				To:         o.To,
				MaxLoss:    o.MaxLoss,
				Shared:     o.Shared,
				Dist:       dist,
				Reserve:    reserve,
				CabID:      cab.ID,
				ETA:        0,
			},
		)
		consumed[cab.ID] = true
	}
	cmds = append(cmds, mutation.ConsumeFreeTaxiOrders{IDs: ids})

	remaining := make([]model.Cab, 0, len(cabs))
	for _, c := range cabs {
		if !consumed[c.ID] {
			remaining = append(remaining, c)
		}
	}
	return remaining, cmds
}
