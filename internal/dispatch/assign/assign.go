// Package assign implements the Fallback Assigner: solo-ride matching
// for orders the route extender and pool builder could not place. It
// runs a greedy LCM (least-cost-match) pass first, then hands whatever
// remains to a Hungarian/Kuhn-Munkres bipartite solver. The greedy pass
// keeps committing the cheapest remaining pair until no pair is within
// its order's MaxWait, so every cell the solver then sees is the
// sentinel and it adds no match: the result is the greedy one, which is
// not guaranteed to be the globally cheapest assignment.
package assign

import (
	"log"

	hungarian "github.com/oddg/hungarian-algorithm"

	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

// Config holds the tunables the assigner needs from config.DispatchConfig.
// Per-order feasibility is gated on each order's own MaxWait (spec §4.5),
// not a global constant, so Config currently carries nothing — it is kept
// as a struct so Assign's signature does not have to change if a future
// tunable (e.g. a pool size cap on the cost matrix) is added here.
type Config struct{}

// Result is one accepted solo assignment of a cab to an order.
type Result struct {
	Order model.Order
	Cab   model.Cab
	ETA   int
}

// Assign greedily matches the cheapest (order, cab) pairs first, then
// solves the Hungarian assignment problem over whatever orders and cabs
// remain, returning every order that still has no cab after both
// passes alongside the accepted results and their mutation commands.
func Assign(demand []model.Order, supply []model.Cab, matrix *geo.Matrix, cfg Config) ([]Result, []model.Order, []mutation.Command) {
	if len(demand) == 0 || len(supply) == 0 {
		return nil, demand, nil
	}

	results, remainingDemand, remainingSupply := greedyLCM(demand, supply, matrix)
	if len(remainingDemand) > 0 && len(remainingSupply) > 0 {
		hungResults, leftover := hungarianAssign(remainingDemand, remainingSupply, matrix)
		results = append(results, hungResults...)
		remainingDemand = leftover
	}

	var cmds []mutation.Command
	for _, r := range results {
		cmds = append(cmds,
			mutation.CreateRoute{CabID: r.Cab.ID, Legs: []mutation.InsertLeg{
				{Place: 0, From: r.Cab.Location, To: r.Order.From, Dist: matrix.Minutes(r.Cab.Location, r.Order.From), Passengers: 0},
				{Place: 1, From: r.Order.From, To: r.Order.To, Dist: matrix.Minutes(r.Order.From, r.Order.To), Passengers: 1},
			}},
			mutation.BindOrder{OrderID: r.Order.ID, CabID: r.Cab.ID, ETA: r.ETA, Place: 1},
			mutation.UpdateCabStatus{CabID: r.Cab.ID, Status: int(model.CabAssigned)},
		)
	}
	log.Printf("[assign] matched=%d unmatched=%d", len(results), len(remainingDemand))
	return results, remainingDemand, cmds
}

// greedyLCM repeatedly picks the single cheapest remaining (order, cab)
// pair across the whole matrix and commits it, removing both sides,
// until no pair within its order's own MaxWait remains. Cost is travel
// time to the pickup plus the cab's remaining distance on its current
// leg, so a cab mid-leg never looks falsely idle. This mirrors the
// original solver's first-pass greedy loop ahead of its exact Munkres
// fallback.
func greedyLCM(demand []model.Order, supply []model.Cab, matrix *geo.Matrix) ([]Result, []model.Order, []model.Cab) {
	demandLeft := append([]model.Order(nil), demand...)
	supplyLeft := append([]model.Cab(nil), supply...)
	var results []Result

	for {
		bestD, bestC, bestCost := -1, -1, 1<<30
		for d, o := range demandLeft {
			for c, cab := range supplyLeft {
				cost := matrix.Minutes(cab.Location, o.From) + cab.RemainingDist
				if cost < bestCost && cost <= o.MaxWait {
					bestCost = cost
					bestD, bestC = d, c
				}
			}
		}
		if bestD == -1 {
			break
		}
		results = append(results, Result{Order: demandLeft[bestD], Cab: supplyLeft[bestC], ETA: bestCost})
		demandLeft = removeOrder(demandLeft, bestD)
		supplyLeft = removeCab(supplyLeft, bestC)
	}
	return results, demandLeft, supplyLeft
}

// hungarianAssign solves the remaining bipartite matching exactly via
// Kuhn-Munkres over a square cost matrix (padded with a sentinel cost
// so the solver always has a feasible square problem regardless of
// which side is larger), using the same travel-time-plus-remaining-
// distance cost as greedyLCM. Per spec §4.5, a (cab, order) cell is
// ∞_SENTINEL whenever the pickup cost would exceed that order's own
// MaxWait — a different threshold from the tick-wide order-age expiry
// window config.DispatchConfig.MaxAssignTimeMinutes covers in engine.go's
// expire pass — so the solver never prefers a pairing that blows a
// passenger's wait tolerance just because it is cheap overall.
func hungarianAssign(demand []model.Order, supply []model.Cab, matrix *geo.Matrix) ([]Result, []model.Order) {
	n := len(demand)
	if len(supply) > n {
		n = len(supply)
	}
	const sentinel = 1 << 20

	costs := make([][]int, n)
	for i := 0; i < n; i++ {
		costs[i] = make([]int, n)
		for j := 0; j < n; j++ {
			if i < len(demand) && j < len(supply) {
				cost := matrix.Minutes(supply[j].Location, demand[i].From) + supply[j].RemainingDist
				if cost > demand[i].MaxWait {
					cost = sentinel
				}
				costs[i][j] = cost
			} else {
				costs[i][j] = sentinel
			}
		}
	}

	assignment, err := hungarian.Solve(costs)
	if err != nil {
		log.Printf("[assign] WARNING: hungarian solve failed: %v", err)
		return nil, demand
	}

	matched := make(map[int]bool, len(demand))
	var results []Result
	for i, j := range assignment {
		if i >= len(demand) || j >= len(supply) {
			continue
		}
		cost := costs[i][j]
		if cost >= sentinel {
			continue
		}
		results = append(results, Result{Order: demand[i], Cab: supply[j], ETA: cost})
		matched[i] = true
	}

	var unmatched []model.Order
	for i, o := range demand {
		if !matched[i] {
			unmatched = append(unmatched, o)
		}
	}
	return results, unmatched
}

func removeOrder(s []model.Order, i int) []model.Order {
	out := make([]model.Order, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func removeCab(s []model.Cab, i int) []model.Cab {
	out := make([]model.Cab, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}
