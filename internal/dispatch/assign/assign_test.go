package assign

import (
	"testing"

	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

func testStops() []model.Stop {
	stops := make([]model.Stop, 0, 10)
	for i := int64(0); i <= 9; i++ {
		stops = append(stops, model.Stop{ID: i, Lat: 1.0 + float64(i)*0.001, Lon: 1.0 + float64(i)*0.001, Bearing: 0, Capacity: 10})
	}
	return stops
}

func newTestMatrix(t *testing.T) *geo.Matrix {
	t.Helper()
	return geo.NewMatrix(testStops(), 30.0)
}

func defaultConfig() Config {
	return Config{}
}

func TestAssign_GreedyMatchesNearestCab(t *testing.T) {
	matrix := newTestMatrix(t)
	demand := []model.Order{{ID: 1, From: 0, To: 5, MaxWait: 60}}
	supply := []model.Cab{
		{ID: 100, Location: 9, Status: model.CabFree},
		{ID: 200, Location: 1, Status: model.CabFree},
	}
	results, unmatched, cmds := Assign(demand, supply, matrix, defaultConfig())
	if len(unmatched) != 0 {
		t.Fatalf("expected the order matched, got %d unmatched", len(unmatched))
	}
	if len(results) != 1 || results[0].Cab.ID != 200 {
		t.Fatalf("expected the nearer cab 200 to be chosen, got %+v", results)
	}
	if len(cmds) == 0 {
		t.Fatal("expected mutation commands for the match")
	}
}

func TestAssign_NoSupplyLeavesEverythingUnmatched(t *testing.T) {
	matrix := newTestMatrix(t)
	demand := []model.Order{{ID: 1, From: 0, To: 5, MaxWait: 60}}
	results, unmatched, cmds := Assign(demand, nil, matrix, defaultConfig())
	if results != nil || cmds != nil {
		t.Fatalf("expected no results with no supply")
	}
	if len(unmatched) != 1 {
		t.Fatalf("expected the order to remain unmatched, got %d", len(unmatched))
	}
}

func TestAssign_MatchesMultipleOrdersInGreedyPass(t *testing.T) {
	matrix := newTestMatrix(t)
	demand := []model.Order{
		{ID: 1, From: 0, To: 5, MaxWait: 60},
		{ID: 2, From: 9, To: 4, MaxWait: 60},
	}
	supply := []model.Cab{
		{ID: 100, Location: 1, Status: model.CabFree},
		{ID: 200, Location: 8, Status: model.CabFree},
	}
	results, unmatched, _ := Assign(demand, supply, matrix, defaultConfig())
	if len(unmatched) != 0 {
		t.Fatalf("expected both orders matched, got %d unmatched", len(unmatched))
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
}

func TestAssign_RemainingDistBreaksTieTowardsFreerCab(t *testing.T) {
	matrix := newTestMatrix(t)
	demand := []model.Order{{ID: 1, From: 0, To: 5, MaxWait: 60}}
	supply := []model.Cab{
		{ID: 100, Location: 1, Status: model.CabFree, RemainingDist: 0},
		{ID: 200, Location: 1, Status: model.CabFree, RemainingDist: 30},
	}
	results, unmatched, _ := Assign(demand, supply, matrix, defaultConfig())
	if len(unmatched) != 0 {
		t.Fatalf("expected the order matched, got %d unmatched", len(unmatched))
	}
	if len(results) != 1 || results[0].Cab.ID != 100 {
		t.Fatalf("expected the cab with no remaining leg distance to win the tie, got %+v", results)
	}
}

func TestAssign_ExceedsOwnMaxWaitStaysUnmatched(t *testing.T) {
	matrix := newTestMatrix(t)
	demand := []model.Order{{ID: 1, From: 0, To: 5, MaxWait: 0}}
	supply := []model.Cab{{ID: 100, Location: 9, Status: model.CabFree}}
	results, unmatched, _ := Assign(demand, supply, matrix, defaultConfig())
	if len(results) != 0 || len(unmatched) != 1 {
		t.Fatalf("expected the match rejected for exceeding the order's own MaxWait")
	}
}

func TestAssign_PerOrderMaxWaitGatesIndependently(t *testing.T) {
	matrix := newTestMatrix(t)
	// Cab 100 is far from order 1 (tight MaxWait: 0) but close to order 2
	// (generous MaxWait), so only order 2 should be matchable to it even
	// though both orders compete for the same single cab.
	demand := []model.Order{
		{ID: 1, From: 0, To: 5, MaxWait: 0},
		{ID: 2, From: 9, To: 4, MaxWait: 60},
	}
	supply := []model.Cab{{ID: 100, Location: 9, Status: model.CabFree}}
	results, unmatched, _ := Assign(demand, supply, matrix, defaultConfig())
	if len(results) != 1 || results[0].Order.ID != 2 {
		t.Fatalf("expected only order 2 matched, got %+v", results)
	}
	if len(unmatched) != 1 || unmatched[0].ID != 1 {
		t.Fatalf("expected order 1 to stay unmatched on its own tight MaxWait, got %+v", unmatched)
	}
}
