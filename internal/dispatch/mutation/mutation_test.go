package mutation

import "testing"

func TestCommandKinds(t *testing.T) {
	cases := []struct {
		cmd  Command
		want string
	}{
		{ShiftPlaces{RouteID: 1, From: 2}, "shift_places"},
		{InsertLeg{RouteID: 1, Place: 2}, "insert_leg"},
		{ResizeLeg{LegID: 1}, "resize_leg"},
		{UpdateReserveRange{RouteID: 1}, "update_reserve_range"},
		{BindOrder{OrderID: 1}, "bind_order"},
		{CreateRoute{CabID: 1}, "create_route"},
		{UpdateCabStatus{CabID: 1}, "update_cab_status"},
		{RelocateCab{CabID: 1}, "relocate_cab"},
		{ExpireOrder{OrderID: 1}, "expire_order"},
	}
	for _, c := range cases {
		if got := c.cmd.Kind(); got != c.want {
			t.Errorf("%T.Kind() = %q, want %q", c.cmd, got, c.want)
		}
	}
}

func TestCreateRoute_CarriesLegsInOrder(t *testing.T) {
	cr := CreateRoute{
		CabID: 42,
		Legs: []InsertLeg{
			{Place: 0, From: 1, To: 2, Dist: 5},
			{Place: 1, From: 2, To: 3, Dist: 7},
		},
	}
	if len(cr.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(cr.Legs))
	}
	if cr.Legs[0].Place != 0 || cr.Legs[1].Place != 1 {
		t.Errorf("legs out of order: %+v", cr.Legs)
	}
}
