package pool

import (
	"context"
	"testing"

	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

func testStops() map[int64]model.Stop {
	stops := map[int64]model.Stop{}
	for i := int64(0); i <= 9; i++ {
		stops[i] = model.Stop{ID: i, Lat: 1.0 + float64(i)*0.001, Lon: 1.0 + float64(i)*0.001, Bearing: 0, Capacity: 10}
	}
	return stops
}

func testMatrix(stops map[int64]model.Stop) *geo.Matrix {
	list := make([]model.Stop, 0, len(stops))
	for _, s := range stops {
		list = append(list, s)
	}
	return geo.NewMatrix(list, 30.0)
}

func defaultConfig() Config {
	return Config{MaxAngle: 150, PoolThreads: 2}
}

func TestFindPool_TwoOrdersFormAPool(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	demand := []model.Order{
		{ID: 1, From: 0, To: 2, MaxWait: 30, MaxLoss: 80, Dist: matrix.Minutes(0, 2)},
		{ID: 2, From: 0, To: 3, MaxWait: 30, MaxLoss: 80, Dist: matrix.Minutes(0, 3)},
	}
	supply := []model.Cab{{ID: 100, Location: 0, Seats: 4, Status: model.CabFree}}

	results, cmds, err := FindPool(context.Background(), 2, demand, supply, matrix, stops, defaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one pool of 2 to form, got %d", len(results))
	}
	if len(results[0].Orders) != 2 {
		t.Fatalf("expected 2 orders in the pool, got %d", len(results[0].Orders))
	}
	if len(cmds) == 0 {
		t.Fatal("expected mutation commands for the accepted pool")
	}
}

func TestFindPool_NoSupplyReturnsNothing(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	demand := []model.Order{
		{ID: 1, From: 0, To: 2, MaxWait: 30, MaxLoss: 80, Dist: matrix.Minutes(0, 2)},
		{ID: 2, From: 0, To: 3, MaxWait: 30, MaxLoss: 80, Dist: matrix.Minutes(0, 3)},
	}
	results, cmds, err := FindPool(context.Background(), 2, demand, nil, matrix, stops, defaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil || cmds != nil {
		t.Fatalf("expected no pools with no supply, got %d results", len(results))
	}
}

func TestFindPool_TightWaitRejectsPool(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	demand := []model.Order{
		{ID: 1, From: 0, To: 2, MaxWait: 0, MaxLoss: 0, Dist: matrix.Minutes(0, 2)},
		{ID: 2, From: 0, To: 3, MaxWait: 0, MaxLoss: 0, Dist: matrix.Minutes(0, 3)},
	}
	supply := []model.Cab{{ID: 100, Location: 5, Seats: 4, Status: model.CabFree}}

	results, _, err := FindPool(context.Background(), 2, demand, supply, matrix, stops, defaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no feasible pool under zero tolerance, got %d", len(results))
	}
}

func TestStoreLeaves_SameOrderPairsInAndOut(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	demand := []model.Order{
		{ID: 1, From: 0, To: 2, MaxWait: 30, MaxLoss: 80, Dist: matrix.Minutes(0, 2)},
	}
	leaves := storeLeaves(demand, matrix, stops, defaultConfig())
	if len(leaves) == 0 {
		t.Fatal("expected at least the self (in, out) leaf for a single order")
	}
	found := false
	for _, b := range leaves {
		if len(b.OrderIDs) == 2 && b.OrderIDs[0] == 0 && b.OrderIDs[1] == 0 &&
			b.Actions[0] == actionIn && b.Actions[1] == actionOut {
			found = true
		}
	}
	if !found {
		t.Error("expected a self (in, out) leaf for the only order in demand")
	}
}
