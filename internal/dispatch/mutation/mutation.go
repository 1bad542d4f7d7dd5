// Package mutation is the dispatch engine's write path: every stage
// (extender, pool, assign, relocate) produces a slice of typed Command
// values instead of building SQL strings by hand, and the Renderer in
// postgres.go turns a batch of commands into a single pgx.Batch sent to the database.
//
// Keeping commands typed rather than pre-rendered SQL means a stage's
// tests can assert on the command slice directly (what got bound to
// what, in what order) without string-matching generated SQL.
package mutation

// Command is one database-bound mutation produced by a dispatch stage.
// Kind identifies the concrete command for ordering/inspection purposes.
type Command interface {
	Kind() string
}

// Ordering within a flushed batch follows the sequence a route extension
// or pool assignment implies: shift existing legs out of the way first,
// insert the new leg(s), update reserves on the legs the insertion
// affected, then bind the order, with any pickup mutation ordered before
// its matching drop-off mutation.

// ShiftPlaces increments the Place of every leg in a route at or after
// From, making room for a leg to be inserted at From.
type ShiftPlaces struct {
	RouteID int64
	From    int
}

func (ShiftPlaces) Kind() string { return "shift_places" }

// InsertLeg creates a new leg at Place within RouteID.
type InsertLeg struct {
	RouteID    int64
	Place      int
	From       int64
	To         int64
	Dist       int
	Reserve    int
	Passengers int
}

func (InsertLeg) Kind() string { return "insert_leg" }

// ResizeLeg shortens or lengthens an existing leg so it ends at NewTo
// instead of its previous destination, following an insertion that
// split it in two.
type ResizeLeg struct {
	LegID   int64
	NewTo   int64
	NewDist int
}

func (ResizeLeg) Kind() string { return "resize_leg" }

// UpdateReserveRange adjusts the Reserve of every leg in [PlaceFrom,
// PlaceTo] within RouteID by Delta minutes (may be negative).
type UpdateReserveRange struct {
	RouteID   int64
	PlaceFrom int
	PlaceTo   int
	Delta     int
}

func (UpdateReserveRange) Kind() string { return "update_reserve_range" }

// BindOrder attaches an order to a route/leg/cab, transitioning it to
// OrderAssigned. ETA is the predicted pickup delay in minutes. When
// RouteID and LegID are both zero, the order is bound to the route this
// same batch just created and to the leg at Place within it — looked up
// by (route_id, place) rather than by sequence currval, since a
// newly-created route may carry several legs and currval only ever
// reflects the most recently inserted row.
type BindOrder struct {
	OrderID int64
	RouteID int64
	LegID   int64
	Place   int
	CabID   int64
	ETA     int
}

func (BindOrder) Kind() string { return "bind_order" }

// CreateRoute inserts a new route for CabID with an initial set of legs,
// used by the pool builder and the fallback assigner when no existing
// route can be extended.
type CreateRoute struct {
	CabID int64
	Legs  []InsertLeg
}

func (CreateRoute) Kind() string { return "create_route" }

// UpdateCabStatus transitions a cab to a new status, e.g. from free to
// assigned once it has been given a route.
type UpdateCabStatus struct {
	CabID  int64
	Status int // model.CabStatus, kept untyped here to avoid an import cycle
}

func (UpdateCabStatus) Kind() string { return "update_cab_status" }

// RelocateCab creates a single-leg empty repositioning route sending a
// free cab to DestStopID.
type RelocateCab struct {
	CabID      int64
	FromStopID int64
	DestStopID int64
	Dist       int
}

func (RelocateCab) Kind() string { return "relocate_cab" }

// ExpireOrder marks an order as refused because no cab could be found
// before its max assignment time elapsed. The engine's own expire pass
// does not emit this command: it refuses stale orders directly through
// OrderRepository.ExpireOlderThan.
type ExpireOrder struct {
	OrderID int64
}

func (ExpireOrder) Kind() string { return "expire_order" }

// CreateOrder inserts a brand-new taxi_order row already bound to a
// route/leg/cab, already ASSIGNED. Every other stage binds an order a
// caller already fetched with LoadPending; the free-taxi fast path is
// the one case where the order itself doesn't exist yet — the customer
// pinned a cab directly, bypassing RECEIVED entirely.
type CreateOrder struct {
	CustomerID int64
	From       int64
	To         int64
	MaxLoss    int
	Shared     bool
	Dist       int
	Reserve    int
	CabID      int64
	ETA        int
}

func (CreateOrder) Kind() string { return "create_order" }

// ConsumeFreeTaxiOrders deletes every freetaxi_order row in IDs once its
// one-shot request has been turned into a CreateOrder (or discarded
// because its pinned cab was no longer free).
type ConsumeFreeTaxiOrders struct {
	IDs []string
}

func (ConsumeFreeTaxiOrders) Kind() string { return "consume_freetaxi_orders" }
