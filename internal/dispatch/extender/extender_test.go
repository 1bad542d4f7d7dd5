package extender

import (
	"testing"

	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

func testStops() map[int64]model.Stop {
	stops := map[int64]model.Stop{}
	for i := int64(0); i <= 5; i++ {
		stops[i] = model.Stop{ID: i, Lat: 1.0 + float64(i)*0.0001, Lon: 1.0 + float64(i)*0.0001, Bearing: 0, Capacity: 10}
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
	return Config{MaxLegs: 8, MaxAngle: 120, ExtendMargin: 1.05, StopWaitMinutes: 0, MaxExtenderSize: 10000}
}

func TestExtend_PerfectMatchDirectHit(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	legs := []model.Leg{
		{ID: 0, RouteID: 123, From: 0, To: 1, Place: 0, Dist: 1, Status: model.RouteAssigned},
		{ID: 1, RouteID: 123, From: 1, To: 2, Place: 1, Dist: 1, Status: model.RouteAssigned},
		{ID: 2, RouteID: 123, From: 2, To: 3, Place: 2, Dist: 1, Status: model.RouteAssigned},
	}
	order := model.Order{ID: 0, From: 1, To: 2, MaxWait: 10, MaxLoss: 50, Dist: 2}

	unplaced, cmds := Extend([]model.Order{order}, legs, matrix, stops, defaultConfig())
	if len(unplaced) != 0 {
		t.Fatalf("expected the order to be placed, got %d unplaced", len(unplaced))
	}
	if len(cmds) == 0 {
		t.Fatal("expected at least a BindOrder command")
	}
	bound := false
	for _, c := range cmds {
		if b, ok := c.(interface{ Kind() string }); ok && b.Kind() == "bind_order" {
			bound = true
		}
	}
	if !bound {
		t.Error("expected a bind_order command among the mutations")
	}
}

func TestExtend_NoFeasibleRoute(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	legs := []model.Leg{
		{ID: 0, RouteID: 123, From: 0, To: 1, Place: 0, Dist: 1, Status: model.RouteAssigned},
		{ID: 1, RouteID: 123, From: 1, To: 2, Place: 1, Dist: 1, Status: model.RouteAssigned},
	}
	// a tiny MaxWait makes every insertion infeasible.
	order := model.Order{ID: 9, From: 4, To: 5, MaxWait: 0, MaxLoss: 0, Dist: 1}

	unplaced, _ := Extend([]model.Order{order}, legs, matrix, stops, defaultConfig())
	if len(unplaced) != 1 {
		t.Fatalf("expected the order to remain unplaced, got %d unplaced", len(unplaced))
	}
}

func TestExtend_EmptyLegsReturnsAllUnplaced(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	orders := []model.Order{{ID: 1, From: 0, To: 1, MaxWait: 10, MaxLoss: 10, Dist: 1}}
	unplaced, cmds := Extend(orders, nil, matrix, stops, defaultConfig())
	if len(unplaced) != 1 || len(cmds) != 0 {
		t.Fatalf("expected all orders back unplaced with no legs, got unplaced=%d cmds=%d", len(unplaced), len(cmds))
	}
}

// sameStopSet returns stops that all sit at the exact same coordinates,
// so matrix.Minutes between any two distinct ids is deterministically 1
// (the floor NewMatrix applies to a zero great-circle distance) — lets
// a test reason about distance_diff arithmetic exactly instead of
// depending on haversine output.
func sameStopSet() map[int64]model.Stop {
	stops := map[int64]model.Stop{}
	for i := int64(0); i <= 9; i++ {
		stops[i] = model.Stop{ID: i, Lat: 1.0, Lon: 1.0, Bearing: 0, Capacity: 10}
	}
	return stops
}

func TestExtend_RejectsPickupWhenReserveTooLow(t *testing.T) {
	stops := sameStopSet()
	matrix := testMatrix(stops)
	legs := []model.Leg{
		{ID: 0, RouteID: 1, From: 0, To: 1, Place: 0, Dist: 1, Reserve: 100, Status: model.RouteAssigned},
		{ID: 1, RouteID: 1, From: 1, To: 2, Place: 1, Dist: 1, Reserve: 4, Status: model.RouteAssigned},
	}
	// distance_diff for the pickup at leg 1 is 1 (leg.From->order.From)
	// + 5 (stop wait) + 1 (order.From->leg.To) - 1 (leg.Dist) = 6, so a
	// reserve of 4 (4-6 = -2 < -1) must be rejected.
	cfg := Config{MaxLegs: 8, MaxAngle: 120, StopWaitMinutes: 5, MaxExtenderSize: 10000}
	order := model.Order{ID: 1, From: 5, To: 2, MaxWait: 1000, MaxLoss: 1000, Dist: 1}

	unplaced, _ := Extend([]model.Order{order}, legs, matrix, stops, cfg)
	if len(unplaced) != 1 {
		t.Fatalf("expected the order rejected for insufficient reserve, got %d unplaced", len(unplaced))
	}
}

func TestExtend_AcceptsPickupAtReserveBoundary(t *testing.T) {
	stops := sameStopSet()
	matrix := testMatrix(stops)
	legs := []model.Leg{
		{ID: 0, RouteID: 1, From: 0, To: 1, Place: 0, Dist: 1, Reserve: 100, Status: model.RouteAssigned},
		{ID: 1, RouteID: 1, From: 1, To: 2, Place: 1, Dist: 1, Reserve: 5, Status: model.RouteAssigned},
	}
	// Same geometry as above but reserve 5 sits exactly at the spec's
	// "distance_diff <= leg.reserve + 1" boundary (5-6 = -1) and must be
	// accepted.
	cfg := Config{MaxLegs: 8, MaxAngle: 120, StopWaitMinutes: 5, MaxExtenderSize: 10000}
	order := model.Order{ID: 1, From: 5, To: 2, MaxWait: 1000, MaxLoss: 1000, Dist: 1}

	unplaced, cmds := Extend([]model.Order{order}, legs, matrix, stops, cfg)
	if len(unplaced) != 0 {
		t.Fatalf("expected the order placed at the reserve boundary, got %d unplaced", len(unplaced))
	}
	if len(cmds) == 0 {
		t.Fatal("expected mutation commands for the match")
	}
}

func TestExtend_SameLegDropoffUsesThreeHopFormula(t *testing.T) {
	stops := sameStopSet()
	matrix := testMatrix(stops)
	cfg := Config{MaxLegs: 8, MaxAngle: 120, StopWaitMinutes: 2, MaxExtenderSize: 10000}

	newLegs := func(dropoffReserve int) []model.Leg {
		return []model.Leg{
			{ID: 0, RouteID: 1, From: 0, To: 1, Place: 0, Dist: 1, Reserve: 100, Status: model.RouteAssigned},
			{ID: 1, RouteID: 1, From: 1, To: 2, Place: 1, Dist: 1, Reserve: dropoffReserve, Status: model.RouteAssigned},
		}
	}
	// Pickup and drop-off both fall inside leg 1 (order.To=3 != leg.To=2,
	// so the drop-off scan can't take the direct-hit shortcut). The
	// three-hop distance_diff is 1 + 2 + 1 + 2 + 1 - 1 = 6, so reserve 5
	// sits at the boundary (accepted) and reserve 4 is rejected.
	order := model.Order{ID: 1, From: 5, To: 3, MaxWait: 1000, MaxLoss: 1000, Dist: 5}

	if unplaced, _ := Extend([]model.Order{order}, newLegs(4), matrix, stops, cfg); len(unplaced) != 1 {
		t.Fatalf("expected the same-leg drop-off rejected below the reserve boundary, got %d unplaced", len(unplaced))
	}
	if unplaced, cmds := Extend([]model.Order{order}, newLegs(5), matrix, stops, cfg); len(unplaced) != 0 || len(cmds) == 0 {
		t.Fatalf("expected the same-leg drop-off accepted at the reserve boundary, got unplaced=%d cmds=%d", len(unplaced), len(cmds))
	}
}

func TestExtend_SplitEmitsReserveRangeForUntouchedLegs(t *testing.T) {
	stops := sameStopSet()
	matrix := testMatrix(stops)
	cfg := Config{MaxLegs: 8, MaxAngle: 120, StopWaitMinutes: 0, MaxExtenderSize: 10000}
	legs := []model.Leg{
		{ID: 0, RouteID: 1, From: 0, To: 1, Place: 0, Dist: 1, Reserve: 50, Status: model.RouteAssigned},
		{ID: 1, RouteID: 1, From: 1, To: 2, Place: 1, Dist: 1, Reserve: 50, Status: model.RouteAssigned},
		{ID: 2, RouteID: 1, From: 2, To: 3, Place: 2, Dist: 1, Reserve: 50, Status: model.RouteAssigned},
	}
	// Pickup splits leg 1 (order.From=5 != leg.From=1); the direct-hit
	// drop-off at leg 1 (order.To=2) keeps the split to the pickup side
	// only, so leg 0 — strictly before the insertion — must see its
	// reserve shrunk via UpdateReserveRange.
	order := model.Order{ID: 1, From: 5, To: 2, MaxWait: 1000, MaxLoss: 1000, Dist: 1}

	_, cmds := Extend([]model.Order{order}, legs, matrix, stops, cfg)
	var found bool
	for _, c := range cmds {
		if r, ok := c.(mutation.UpdateReserveRange); ok {
			found = true
			if r.RouteID != 1 || r.PlaceFrom != 0 || r.PlaceTo != 0 {
				t.Errorf("expected the range to cover only leg 0 (place 0), got %+v", r)
			}
		}
	}
	if !found {
		t.Fatal("expected an UpdateReserveRange command shrinking the leg before the pickup insertion")
	}
}

func TestExtend_InitialDistanceExcludesCandidateLegsOwnDist(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	legs := []model.Leg{
		{ID: 0, RouteID: 1, From: 0, To: 1, Place: 0, Dist: 5, Status: model.RouteStarted},
		{ID: 1, RouteID: 1, From: 1, To: 2, Place: 1, Dist: 3, Status: model.RouteAssigned},
	}
	// A direct-hit match at leg 1 has a real wait of 0 (leg 0 is already
	// started, so it does not count toward the initial distance, and leg
	// 1's own dist must not be folded into elapsed before its own
	// candidacy is evaluated).
	order := model.Order{ID: 1, From: 1, To: 2, MaxWait: 2, MaxLoss: 1000, Dist: 3}

	unplaced, cmds := Extend([]model.Order{order}, legs, matrix, stops, defaultConfig())
	if len(unplaced) != 0 {
		t.Fatalf("expected the perfect-match order placed with zero wait, got %d unplaced", len(unplaced))
	}
	if len(cmds) == 0 {
		t.Fatal("expected mutation commands for the match")
	}
}

func TestExtend_InsertionBranchAddsDetourToPickupWait(t *testing.T) {
	stops := sameStopSet()
	matrix := testMatrix(stops)
	cfg := Config{MaxLegs: 8, MaxAngle: 120, StopWaitMinutes: 0, MaxExtenderSize: 10000}
	legs := []model.Leg{
		{ID: 0, RouteID: 1, From: 0, To: 1, Place: 0, Dist: 1, Reserve: 100, Status: model.RouteStarted},
		{ID: 1, RouteID: 1, From: 1, To: 2, Place: 1, Dist: 1, Reserve: 100, Status: model.RouteAssigned},
	}
	// order.From (5) != leg.From (1), so this takes the insertion branch.
	// elapsed is 0 at leg 1 (leg 0 is already started, so it does not
	// count toward the initial distance), but the 1-minute detour to reach the mid-leg
	// pickup stop must still count against MaxWait: 0, so this must be
	// rejected even though the perfect-match check alone would pass it.
	order := model.Order{ID: 1, From: 5, To: 2, MaxWait: 0, MaxLoss: 1000, Dist: 1}

	unplaced, _ := Extend([]model.Order{order}, legs, matrix, stops, cfg)
	if len(unplaced) != 1 {
		t.Fatalf("expected the insertion rejected for the uncounted pickup detour, got %d unplaced", len(unplaced))
	}
}

func TestExtend_RespectsMaxExtenderSize(t *testing.T) {
	stops := testStops()
	matrix := testMatrix(stops)
	cfg := defaultConfig()
	cfg.MaxExtenderSize = 1
	orders := []model.Order{
		{ID: 1, From: 0, To: 1, MaxWait: 10, MaxLoss: 10, Dist: 1},
		{ID: 2, From: 0, To: 1, MaxWait: 10, MaxLoss: 10, Dist: 1},
	}
	legs := []model.Leg{
		{ID: 0, RouteID: 1, From: 0, To: 1, Place: 0, Dist: 1, Status: model.RouteAssigned},
		{ID: 1, RouteID: 1, From: 1, To: 2, Place: 1, Dist: 1, Status: model.RouteAssigned},
	}
	unplaced, cmds := Extend(orders, legs, matrix, stops, cfg)
	if len(unplaced) != len(orders) || cmds != nil {
		t.Fatalf("expected the whole batch skipped when exceeding MaxExtenderSize")
	}
}
