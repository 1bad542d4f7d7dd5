// Package extender implements the Route Extender: the first dispatch
// stage, which tries to slot each pending order into an already-assigned
// route before falling back to pool building or solo assignment.
//
// Grounded on the corrected predecessor-check revision of the original
// extender (the canonical eligibility rule: a leg is only a candidate if
// it has not yet started and is not the first leg of its route — see
// DESIGN.md for why the alternate, buggy precedence check in the
// original's first revision is not reproduced here).
package extender

import (
	"log"

	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/dispatch/reserve"
	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

// Config holds the tunables the extender needs from config.DispatchConfig.
type Config struct {
	MaxLegs         int
	MaxAngle        float64
	ExtendMargin    float64
	StopWaitMinutes int
	MaxExtenderSize int
}

// candidate is one feasible insertion point found for an order.
type candidate struct {
	legFromIdx int
	legToIdx   int
	cost       int
}

// Extend tries to insert each order into the legs of already-assigned
// routes. It returns the orders that could not be placed (which the
// caller hands to the pool builder next) and the mutation commands
// needed to realize every successful insertion.
//
// legs must be sorted by (RouteID, Place) ascending, matching the order
// routes are read from the database — the eligibility scan below relies
// on that ordering to detect route boundaries cheaply.
func Extend(orders []model.Order, legs []model.Leg, matrix *geo.Matrix, stops map[int64]model.Stop, cfg Config) ([]model.Order, []mutation.Command) {
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > cfg.MaxExtenderSize {
		log.Printf("[extender] demand size %d exceeds max_extender_size %d, skipping this tick", len(orders), cfg.MaxExtenderSize)
		return orders, nil
	}
	if len(legs) < 2 {
		return orders, nil
	}

	var unplaced []model.Order
	var cmds []mutation.Command
	working := append([]model.Leg(nil), legs...)

	for _, order := range orders {
		c, ok := tryExtend(order, working, matrix, stops, cfg)
		if !ok {
			unplaced = append(unplaced, order)
			continue
		}
		legCmds := applyInsertion(order, working, c, matrix, cfg)
		cmds = append(cmds, legCmds...)
		log.Printf("[extender] order %d assigned to existing route %d", order.ID, working[c.legFromIdx].RouteID)
	}
	return unplaced, cmds
}

// tryExtend scans legs for the cheapest feasible (pickup, drop-off) pair
// of insertion indices for one order. A leg is eligible only if:
//   - it has not started (Status == RouteAssigned or RouteAccepted), and
//   - it is not the first leg of its route (it has a predecessor in the
//     same route that has not completed) — the canonical eligibility
//     check; this gives both parties time to receive the assignment
//     before the cab departs.
func tryExtend(order model.Order, legs []model.Leg, matrix *geo.Matrix, stops map[int64]model.Stop, cfg Config) (candidate, bool) {
	var feasible []candidate
	var elapsed int
	legCount := countLegsInRoute(legs, 1)
	if legs[0].Status == model.RouteAssigned || legs[0].Status == model.RouteAccepted {
		elapsed = legs[0].Dist + cfg.StopWaitMinutes
	}

	for i := 1; i < len(legs); i++ {
		leg := legs[i]
		prev := legs[i-1]

		if prev.RouteID != leg.RouteID {
			elapsed = 0
			legCount = countLegsInRoute(legs, i)
		}

		eligible := prev.RouteID == leg.RouteID && prev.Status != model.RouteCompleted &&
			(leg.Status == model.RouteAssigned || leg.Status == model.RouteAccepted)
		if eligible {
			notTooLong := legCount <= cfg.MaxLegs

			pickupOK := order.From == leg.From
			pickupWait := elapsed
			if !pickupOK && notTooLong {
				distanceDiff := matrix.Minutes(leg.From, order.From) + cfg.StopWaitMinutes + matrix.Minutes(order.From, leg.To) - leg.Dist
				reserveOK := leg.Reserve-distanceDiff >= -1
				angleOK := geo.BearingDiff(stops[leg.From].Bearing, stops[order.From].Bearing) < cfg.MaxAngle &&
					geo.BearingDiff(stops[order.From].Bearing, stops[leg.To].Bearing) < cfg.MaxAngle
				pickupOK = reserveOK && angleOK
				pickupWait = elapsed + matrix.Minutes(leg.From, order.From)
			}
			if order.From != leg.To && pickupOK && order.MaxWait >= pickupWait {
				if k, dist, ok := findDropoff(order, legs, i, notTooLong, matrix, stops, cfg); ok {
					totalDist := elapsed + dist
					loss := (1.0 + float64(order.MaxLoss)/100.0) * float64(order.Dist)
					if loss >= float64(dist) {
						feasible = append(feasible, candidate{legFromIdx: i, legToIdx: k, cost: totalDist})
					}
				}
			}
		}

		// initial_distance only ever covers legs preceding the candidate
		// under test, so the current leg's own distance is folded in
		// after its candidacy has been evaluated, not before.
		if leg.Status == model.RouteAssigned || leg.Status == model.RouteAccepted {
			elapsed += leg.Dist + cfg.StopWaitMinutes
		}
	}
	if len(feasible) == 0 {
		return candidate{}, false
	}
	best := feasible[0]
	for _, c := range feasible[1:] {
		if c.cost < best.cost {
			best = c
		}
	}
	return best, true
}

// findDropoff scans forward from the pickup leg for a feasible drop-off
// leg within the same route, returning its index and the pooled
// distance accumulated along the way.
func findDropoff(order model.Order, legs []model.Leg, fromIdx int, notTooLong bool, matrix *geo.Matrix, stops map[int64]model.Stop, cfg Config) (int, int, bool) {
	var distInPool int
	routeID := legs[fromIdx].RouteID
	for k := fromIdx; k < len(legs); k++ {
		if k != fromIdx {
			distInPool += legs[k].Dist
		}
		if legs[k].RouteID != routeID {
			return 0, 0, false
		}
		if order.To == legs[k].To {
			return k, distInPool, true
		}
		if notTooLong {
			var distanceDiff int
			if k == fromIdx {
				// Pickup and drop-off share a leg: the full three-hop
				// detour (to pickup, to drop-off, back onto the leg)
				// replaces the leg's direct distance.
				distanceDiff = matrix.Minutes(legs[k].From, order.From) + cfg.StopWaitMinutes +
					matrix.Minutes(order.From, order.To) + cfg.StopWaitMinutes +
					matrix.Minutes(order.To, legs[k].To) - legs[k].Dist
			} else {
				distanceDiff = matrix.Minutes(legs[k].From, order.To) + cfg.StopWaitMinutes +
					matrix.Minutes(order.To, legs[k].To) - legs[k].Dist
			}
			reserveOK := legs[k].Reserve-distanceDiff >= -1
			angleOK := geo.BearingDiff(stops[legs[k].From].Bearing, stops[order.To].Bearing) < cfg.MaxAngle &&
				geo.BearingDiff(stops[order.To].Bearing, stops[legs[k].To].Bearing) < cfg.MaxAngle
			if reserveOK && angleOK {
				distInPool -= matrix.Minutes(order.To, legs[k].To)
				return k, distInPool, true
			}
		}
	}
	return 0, 0, false
}

func countLegsInRoute(legs []model.Leg, fromIdx int) int {
	if fromIdx >= len(legs) {
		return 0
	}
	routeID := legs[fromIdx].RouteID
	count := 0
	for i := fromIdx; i < len(legs) && legs[i].RouteID == routeID; i++ {
		count++
	}
	return count
}

// lastPlaceInRoute returns the highest Place value among legs belonging
// to routeID, or -1 if the route has no legs in legs.
func lastPlaceInRoute(legs []model.Leg, routeID int64) int {
	last := -1
	for _, l := range legs {
		if l.RouteID == routeID && l.Place > last {
			last = l.Place
		}
	}
	return last
}

// applyInsertion renders the mutation commands for one accepted
// candidate. Splitting a leg at the pickup or drop-off point resizes the
// touched leg and inserts its remainder. A pickup split also shrinks the
// reserve of every leg before the split leg by the pickup's distanceDiff,
// and a drop-off split shrinks every original leg after the split leg by
// the drop-off's distanceDiff, both via UpdateReserveRange. Legs between
// the pickup and drop-off keep their reserve and passenger count as they
// were, and a pickup that needs no split emits no reserve update for the
// legs before it.
func applyInsertion(order model.Order, legs []model.Leg, c candidate, matrix *geo.Matrix, cfg Config) []mutation.Command {
	var cmds []mutation.Command
	fromLeg := legs[c.legFromIdx]
	toLeg := legs[c.legToIdx]

	pickupSplit := order.From != fromLeg.From
	dropoffSplit := order.To != toLeg.To
	shiftCount := 0

	var pickupLegID int64
	if !pickupSplit {
		pickupLegID = fromLeg.ID
	} else {
		newDist := matrix.Minutes(order.From, fromLeg.To)
		oldDist := matrix.Minutes(fromLeg.From, order.From)
		distanceDiffIn := oldDist + cfg.StopWaitMinutes + newDist - fromLeg.Dist
		cmds = append(cmds,
			mutation.ShiftPlaces{RouteID: fromLeg.RouteID, From: fromLeg.Place + 1},
			mutation.InsertLeg{
				RouteID:    fromLeg.RouteID,
				Place:      fromLeg.Place + 1,
				From:       order.From,
				To:         fromLeg.To,
				Dist:       newDist,
				Reserve:    reserve.ApplyInsertion(fromLeg.Reserve, distanceDiffIn),
				Passengers: fromLeg.Passengers,
			},
			mutation.ResizeLeg{LegID: fromLeg.ID, NewTo: order.From, NewDist: oldDist},
		)
		if fromLeg.Place > 0 {
			cmds = append(cmds, mutation.UpdateReserveRange{
				RouteID:   fromLeg.RouteID,
				PlaceFrom: 0,
				PlaceTo:   fromLeg.Place - 1,
				Delta:     -distanceDiffIn,
			})
		}
		shiftCount++
	}

	if dropoffSplit {
		newDist := matrix.Minutes(toLeg.From, order.To)
		remainder := matrix.Minutes(order.To, toLeg.To)
		distanceDiffOut := newDist + cfg.StopWaitMinutes + remainder - toLeg.Dist
		cmds = append(cmds,
			mutation.ShiftPlaces{RouteID: toLeg.RouteID, From: toLeg.Place + 1},
			mutation.InsertLeg{
				RouteID:    toLeg.RouteID,
				Place:      toLeg.Place + 1,
				From:       order.To,
				To:         toLeg.To,
				Dist:       remainder,
				Reserve:    reserve.ApplyInsertion(toLeg.Reserve, distanceDiffOut),
				Passengers: toLeg.Passengers,
			},
			mutation.ResizeLeg{LegID: toLeg.ID, NewTo: order.To, NewDist: newDist},
		)
		shiftCount++
		if last := lastPlaceInRoute(legs, toLeg.RouteID); last > toLeg.Place {
			cmds = append(cmds, mutation.UpdateReserveRange{
				RouteID:   toLeg.RouteID,
				PlaceFrom: toLeg.Place + 1 + shiftCount,
				PlaceTo:   last + shiftCount,
				Delta:     -distanceDiffOut,
			})
		}
	}

	cmds = append(cmds, mutation.BindOrder{
		OrderID: order.ID,
		RouteID: fromLeg.RouteID,
		LegID:   pickupLegID,
		ETA:     0,
	})
	return cmds
}
