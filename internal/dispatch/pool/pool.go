// Package pool implements the Pool Builder: bottom-up branch enumeration
// that finds shared-ride groupings of 2, 3 or 4 orders a single cab can
// serve together, for demand the route extender could not place.
//
// The algorithm builds a tree bottom-up: level 2*inPool-2 ("leaves")
// pairs every order's pickup/drop-off actions; each shallower level
// extends every surviving branch from the level below with one more
// order action, discarding any extension that would violate an order's
// wait or loss tolerance. The top level (0) holds every feasible full
// pool. Levels are built with a per-level worker fan-out
// (golang.org/x/sync/errgroup) mirroring the original's per-level
// thread::spawn/join fan-out — each goroutine owns a private slice of
// candidate branches, merged without a lock once every goroutine in the
// level has returned.
package pool

import (
	"context"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

// action identifies whether a branch slot is a pickup ('i', "in") or a
// drop-off ('o', "out") of the order at the matching index.
type action byte

const (
	actionIn  action = 'i'
	actionOut action = 'o'
)

// Branch is one candidate pool: an ordered sequence of (order, action)
// pairs describing the stop-by-stop visiting order a cab would follow.
// OrderIDs/Actions hold the sequence as built (deepest-first); SortedIDs
// mirrors OrderIDs sorted. Duplicate detection (sharesOrder) reads
// OrderIDs and Actions; SortedIDs is not consulted by it.
type Branch struct {
	OrderIDs  []int64
	Actions   []action
	SortedIDs []int64
	Cost      int // sentinel -1 marks a branch invalidated during dedup
	Outs      int
}

// Config holds the tunables the pool builder needs from
// config.DispatchConfig.
type Config struct {
	MaxAngle             float64
	PoolThreads          int
	PoolDedupDropoffsToo bool
}

// Result is one accepted pool assignment: a cab bound to an ordered set
// of orders with a matching action sequence. Orders lists each pooled
// order once, in pickup order.
type Result struct {
	Cab    model.Cab
	Orders []model.Order
	Branch Branch
}

// FindPool runs the bottom-up search for pools of exactly inPool orders
// and greedily allocates the nearest free cab (LCM) to each surviving
// pool, nearest-cost-first. Cabs allocated here are removed from supply
// so that later stages (a smaller in_pool search, or the fallback
// assigner) cannot double-book them.
func FindPool(ctx context.Context, inPool int, demand []model.Order, supply []model.Cab, matrix *geo.Matrix, stops map[int64]model.Stop, cfg Config) ([]Result, []mutation.Command, error) {
	if len(demand) == 0 || len(supply) == 0 {
		return nil, nil, nil
	}
	root, err := dive(ctx, 0, inPool, demand, matrix, stops, cfg)
	if err != nil {
		return nil, nil, err
	}
	results, cmds := allocate(inPool, root, demand, supply, matrix, cfg)
	log.Printf("[pool] in_pool=%d found=%d", inPool, len(results))
	return results, cmds, nil
}

// dive recurses to the deepest level first (the leaves), then builds
// each shallower level from the one below it, fanning the per-order
// outer loop of each level across cfg.PoolThreads goroutines.
func dive(ctx context.Context, lev, inPool int, demand []model.Order, matrix *geo.Matrix, stops map[int64]model.Stop, cfg Config) ([]Branch, error) {
	if lev > inPool+inPool-3 {
		return storeLeaves(demand, matrix, stops, cfg), nil
	}
	prev, err := dive(ctx, lev+1, inPool, demand, matrix, stops, cfg)
	if err != nil {
		return nil, err
	}
	if len(prev) == 0 {
		return nil, nil
	}

	threads := cfg.PoolThreads
	if threads < 1 {
		threads = 1
	}
	chunk := (len(demand) + threads - 1) / threads

	results := make([][]Branch, threads)
	g, _ := errgroup.WithContext(ctx)
	for t := 0; t < threads; t++ {
		t := t
		start := t * chunk
		if start >= len(demand) {
			continue
		}
		end := start + chunk
		if end > len(demand) {
			end = len(demand)
		}
		g.Go(func() error {
			var local []Branch
			for i := start; i < end; i++ {
				for _, b := range prev {
					if b.Cost == -1 {
						continue
					}
					local = append(local, extendBranch(lev, inPool, int64(i), demand, b, matrix, stops, cfg)...)
				}
			}
			results[t] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var node []Branch
	for _, r := range results {
		node = append(node, r...)
	}
	log.Printf("[pool] level=%d size=%d", lev, len(node))
	return node, nil
}

// storeLeaves builds the deepest level of the tree: every ordered pair
// of order actions that could sit adjacent to each other, including the
// (IN, OUT) pair of the same order.
func storeLeaves(demand []model.Order, matrix *geo.Matrix, stops map[int64]model.Stop, cfg Config) []Branch {
	var ret []Branch
	for c := range demand {
		for d := range demand {
			if c == d {
				ret = append(ret, addBranch(demand, int64(c), int64(d), actionIn, actionOut, 1, matrix))
				continue
			}
			allowedDetour := float64(demand[d].Dist) * (100.0 + float64(demand[d].MaxLoss)) / 100.0
			if float64(matrix.Minutes(demand[c].To, demand[d].To)) < allowedDetour &&
				geo.BearingDiff(stops[demand[c].To].Bearing, stops[demand[d].To].Bearing) < cfg.MaxAngle {
				ret = append(ret, addBranch(demand, int64(c), int64(d), actionOut, actionOut, 2, matrix))
			}
		}
	}
	return ret
}

func addBranch(demand []model.Order, id1, id2 int64, dir1, dir2 action, outs int, matrix *geo.Matrix) Branch {
	br := Branch{
		OrderIDs: []int64{id1, id2},
		Actions:  []action{dir1, dir2},
		Cost:     matrix.Minutes(demand[id1].To, demand[id2].To),
		Outs:     outs,
	}
	if id1 < id2 || (id1 == id2 && dir1 == actionIn) {
		br.SortedIDs = []int64{id1, id2}
	} else {
		br.SortedIDs = []int64{id2, id1}
	}
	return br
}

// extendBranch tries to prepend orderIdx's pickup and/or drop-off action
// onto an existing deeper branch, discarding attempts that would
// duplicate the order or violate its constraints.
func extendBranch(lev, inPool int, orderIdx int64, demand []model.Order, br Branch, matrix *geo.Matrix, stops map[int64]model.Stop, cfg Config) []Branch {
	var inFound, outFound bool
	for i, id := range br.OrderIDs {
		if id == orderIdx {
			if br.Actions[i] == actionIn {
				inFound = true
			} else {
				outFound = true
			}
		}
	}

	var nextStop int64
	if br.Actions[0] == actionIn {
		nextStop = demand[br.OrderIDs[0]].From
	} else {
		nextStop = demand[br.OrderIDs[0]].To
	}

	var out []Branch
	if !inFound && outFound &&
		!isTooLong(matrix.Minutes(demand[orderIdx].From, nextStop), br, demand, matrix) &&
		geo.BearingDiff(stops[demand[orderIdx].From].Bearing, stops[nextStop].Bearing) < cfg.MaxAngle {
		out = append(out, storeBranch(actionIn, lev, inPool, orderIdx, br, demand, matrix))
	}
	if lev > 0 && br.Outs < inPool && !outFound &&
		!isTooLong(matrix.Minutes(demand[orderIdx].To, nextStop), br, demand, matrix) &&
		geo.BearingDiff(stops[demand[orderIdx].To].Bearing, stops[nextStop].Bearing) < cfg.MaxAngle {
		out = append(out, storeBranch(actionOut, lev, inPool, orderIdx, br, demand, matrix))
	}
	return out
}

// isTooLong walks a branch accumulating travel time and returns true as
// soon as any order in it would breach its wait or loss tolerance with
// dist added ahead of it. The loss check applies only to drop-offs whose
// pickup is not yet in the branch: that pickup will be prepended ahead
// of the new first stop, so the accumulated time is a lower bound on the
// order's in-pool distance. Orders with both actions in the branch were
// checked when their pickup was prepended.
func isTooLong(dist int, br Branch, demand []model.Order, matrix *geo.Matrix) bool {
	wait := dist
	picked := make(map[int64]bool, len(br.OrderIDs))
	for i, id := range br.OrderIDs {
		o := demand[id]
		if br.Actions[i] == actionIn {
			picked[id] = true
		} else if !picked[id] && float64(wait) > float64(o.Dist)*(100.0+float64(o.MaxLoss))/100.0 {
			return true
		}
		if br.Actions[i] == actionIn && wait > o.MaxWait {
			return true
		}
		if i+1 < len(br.OrderIDs) {
			var from int64
			if br.Actions[i] == actionIn {
				from = o.From
			} else {
				from = o.To
			}
			next := demand[br.OrderIDs[i+1]]
			var to int64
			if br.Actions[i+1] == actionIn {
				to = next.From
			} else {
				to = next.To
			}
			wait += matrix.Minutes(from, to)
		}
	}
	return false
}

func storeBranch(act action, lev, inPool int, orderIdx int64, b Branch, demand []model.Order, matrix *geo.Matrix) Branch {
	n := inPool + inPool - lev
	ids := make([]int64, n)
	acts := make([]action, n)
	ids[0] = orderIdx
	acts[0] = act
	copy(ids[1:], b.OrderIDs)
	copy(acts[1:], b.Actions)

	var from int64
	if act == actionIn {
		from = demand[orderIdx].From
	} else {
		from = demand[orderIdx].To
	}
	var to int64
	if b.Actions[0] == actionIn {
		to = demand[b.OrderIDs[0]].From
	} else {
		to = demand[b.OrderIDs[0]].To
	}

	outs := b.Outs
	if act == actionOut {
		outs++
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return Branch{
		OrderIDs:  ids,
		Actions:   acts,
		SortedIDs: sorted,
		Cost:      matrix.Minutes(from, to) + b.Cost,
		Outs:      outs,
	}
}

// allocate sorts surviving branches by cost (cheapest pool first),
// assigns each the nearest available cab (LCM — "least cost matching"),
// and discards any branch that shares a pickup order with an
// already-allocated, cheaper branch — the documented open-question
// dedup behavior, optionally extended to drop-offs too via
// cfg.PoolDedupDropoffsToo.
func allocate(inPool int, branches []Branch, demand []model.Order, supply []model.Cab, matrix *geo.Matrix, cfg Config) ([]Result, []mutation.Command) {
	if len(branches) == 0 {
		return nil, nil
	}
	sort.SliceStable(branches, func(i, j int) bool { return branches[i].Cost < branches[j].Cost })

	taken := make(map[int]bool, len(supply))
	var results []Result
	var cmds []mutation.Command

	for i := range branches {
		if branches[i].Cost == -1 {
			continue
		}
		cabIdx := findNearestCab(demand[branches[i].OrderIDs[0]], supply, taken, matrix)
		if cabIdx == -1 {
			invalidateFrom(branches, i)
			break
		}
		distToCab := matrix.Minutes(supply[cabIdx].Location, demand[branches[i].OrderIDs[0]].From)
		if distToCab == 0 || constraintsMet(branches[i], distToCab, demand, matrix) {
			taken[cabIdx] = true
			invalidateDuplicates(branches, i, inPool, cfg.PoolDedupDropoffsToo)
			orders := make([]model.Order, 0, inPool)
			for k, id := range branches[i].OrderIDs {
				if branches[i].Actions[k] == actionIn {
					orders = append(orders, demand[id])
				}
			}
			results = append(results, Result{Cab: supply[cabIdx], Orders: orders, Branch: branches[i]})
			cmds = append(cmds, buildPoolCommands(supply[cabIdx], orders, branches[i], demand, matrix)...)
		} else {
			branches[i].Cost = -1
		}
	}
	return results, cmds
}

func findNearestCab(first model.Order, supply []model.Cab, taken map[int]bool, matrix *geo.Matrix) int {
	nearest := -1
	best := 1 << 30
	for i, c := range supply {
		if taken[i] {
			continue
		}
		d := matrix.Minutes(c.Location, first.From)
		if d < best {
			best = d
			nearest = i
		}
	}
	return nearest
}

func constraintsMet(br Branch, distToCab int, demand []model.Order, matrix *geo.Matrix) bool {
	dist := 0
	for i, id := range br.OrderIDs {
		o := demand[id]
		if br.Actions[i] == actionIn && dist+distToCab > o.MaxWait {
			return false
		}
		if br.Actions[i] == actionOut && float64(dist) > (1.0+float64(o.MaxLoss)/100.0)*float64(o.Dist) {
			return false
		}
		if i < len(br.OrderIDs)-1 {
			var from int64
			if br.Actions[i] == actionIn {
				from = o.From
			} else {
				from = o.To
			}
			next := demand[br.OrderIDs[i+1]]
			var to int64
			if br.Actions[i+1] == actionIn {
				to = next.From
			} else {
				to = next.To
			}
			dist += matrix.Minutes(from, to)
		}
	}
	return true
}

func invalidateFrom(branches []Branch, from int) {
	for j := from + 1; j < len(branches); j++ {
		branches[j].Cost = -1
	}
}

// invalidateDuplicates marks every later, costlier branch that shares a
// pickup order (and, if dedupDropoffsToo, a drop-off order) with the
// branch at index i as dead, since the list is sorted by cost and the
// cheaper allocation at i already claims that order.
func invalidateDuplicates(branches []Branch, i, inPool int, dedupDropoffsToo bool) {
	for j := i + 1; j < len(branches); j++ {
		if branches[j].Cost == -1 {
			continue
		}
		if sharesOrder(branches[i], branches[j], dedupDropoffsToo) {
			branches[j].Cost = -1
		}
	}
}

func sharesOrder(a, b Branch, dedupDropoffsToo bool) bool {
	for x, idx := range a.OrderIDs {
		if a.Actions[x] != actionIn && !dedupDropoffsToo {
			continue
		}
		for y, jdx := range b.OrderIDs {
			if b.Actions[y] != actionIn && !dedupDropoffsToo {
				continue
			}
			if idx == jdx {
				return true
			}
		}
	}
	return false
}

func buildPoolCommands(cab model.Cab, orders []model.Order, br Branch, demand []model.Order, matrix *geo.Matrix) []mutation.Command {
	legs := make([]mutation.InsertLeg, 0, len(orders))
	pickupPlace := make(map[int64]int, len(orders))
	passengers := 0
	prevStop := cab.Location
	for i, id := range br.OrderIDs {
		o := demand[id]
		var stop int64
		if br.Actions[i] == actionIn {
			stop = o.From
			passengers++
			pickupPlace[o.ID] = i
		} else {
			stop = o.To
			passengers--
		}
		legs = append(legs, mutation.InsertLeg{
			Place:      i,
			From:       prevStop,
			To:         stop,
			Dist:       matrix.Minutes(prevStop, stop),
			Passengers: passengers,
		})
		prevStop = stop
	}
	cmds := []mutation.Command{mutation.CreateRoute{CabID: cab.ID, Legs: legs}}
	for _, o := range orders {
		cmds = append(cmds, mutation.BindOrder{OrderID: o.ID, CabID: cab.ID, Place: pickupPlace[o.ID]})
	}
	return cmds
}
