// Package model contains the domain types shared by every dispatch stage.
// These structs map to the relational schema described in the project's
// persistence design: stop, taxi_order, cab, route, leg, freetaxi_order, stat.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

// OrderStatus maps to the taxi_order.status column.
type OrderStatus int

const (
	OrderReceived OrderStatus = iota
	OrderAssigned
	OrderAccepted
	OrderCancelled
	OrderRejected
	OrderAbandoned
	OrderRefused
	OrderPickedUp
	OrderCompleted
)

func (s OrderStatus) String() string {
	switch s {
	case OrderReceived:
		return "received"
	case OrderAssigned:
		return "assigned"
	case OrderAccepted:
		return "accepted"
	case OrderCancelled:
		return "cancelled"
	case OrderRejected:
		return "rejected"
	case OrderAbandoned:
		return "abandoned"
	case OrderRefused:
		return "refused"
	case OrderPickedUp:
		return "picked_up"
	case OrderCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// RouteStatus maps to the route.status column. Legs reuse the same
// enumeration for their own status field, as the original model did.
type RouteStatus int

const (
	RoutePlanned RouteStatus = iota
	RouteAssigned
	RouteAccepted
	RouteRejected
	RouteAbandoned
	RouteStarted
	RouteCompleted
)

func (s RouteStatus) String() string {
	switch s {
	case RoutePlanned:
		return "planned"
	case RouteAssigned:
		return "assigned"
	case RouteAccepted:
		return "accepted"
	case RouteRejected:
		return "rejected"
	case RouteAbandoned:
		return "abandoned"
	case RouteStarted:
		return "started"
	case RouteCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// CabStatus maps to the cab.status column.
type CabStatus int

const (
	CabAssigned CabStatus = iota
	CabFree
	CabCharging
)

func (s CabStatus) String() string {
	switch s {
	case CabAssigned:
		return "assigned"
	case CabFree:
		return "free"
	case CabCharging:
		return "charging"
	default:
		return "unknown"
	}
}

// ─── Core domain types ──────────────────────────────────────

// Stop is a fixed geographic point that vehicles travel between. Stops and
// the distance matrix derived from them are process-wide and read-only
// after initialization; see internal/geo.Matrix.
type Stop struct {
	ID       int64
	Lat      float64
	Lon      float64
	Bearing  int16 // compass heading out of the stop, 0-359
	Capacity int   // max free cabs that may idle here at once
}

// Order is a ride request. MaxWait and MaxLoss are hard constraints: any
// proposed insertion that would breach either is infeasible.
type Order struct {
	ID        int64
	From      int64 // pickup stop id
	To        int64 // drop-off stop id
	MaxWait   int   // minutes tolerated between receipt and pickup
	MaxLoss   int   // percent detour tolerated over the solo trip distance
	Dist      int   // precomputed solo trip distance, minutes
	Shared    bool
	InPool    bool
	Status    OrderStatus
	RouteID   *int64
	LegID     *int64
	CabID     *int64
	Received  time.Time
	Started   *time.Time
	Completed *time.Time
	AtTime    *time.Time // optional scheduled pickup time, nil means ASAP
	ETA       int        // minutes from assignment time to pickup
}

// Cab is a vehicle. RemainingDist is non-zero only while the cab is mid-leg,
// i.e. its last committed leg has been started but not yet completed.
type Cab struct {
	ID            int64
	Location      int64 // current or next stop id
	Seats         int
	RemainingDist int
	Status        CabStatus
}

// Route is an ordered, non-empty sequence of legs owned by one cab.
type Route struct {
	ID     int64
	CabID  int64
	Locked bool // true while a stage is extending it; must not be touched concurrently
	Status RouteStatus
}

// Leg is one hop of a route between two adjacent stops.
//
// Invariants, enforced by the dispatch stages rather than this type:
//   - Reserve >= 0 for any leg that has not yet started.
//   - Passengers in [0, cab.Seats].
//   - Dist equals the matrix lookup from From to To, at least 1.
type Leg struct {
	ID         int64
	RouteID    int64
	Place      int // 0-based position within the route, dense, no gaps
	From       int64
	To         int64
	Dist       int
	Status     RouteStatus
	Started    *time.Time
	Completed  *time.Time
	Passengers int
	Reserve    int
}

// FreeTaxiOrder is a one-shot request that pins a specific cab, bypassing
// matching and pooling entirely. See internal/dispatch/freetaxi, which
// resolves these ahead of every other dispatch stage.
type FreeTaxiOrder struct {
	ID         string // externally-facing UUID token
	CustomerID int64
	CabID      int64
	From       int64
	To         int64
	MaxLoss    int
	Shared     bool
	Received   time.Time
}

// Stat is one named counter persisted to the stat table between ticks.
type Stat struct {
	Name   string
	IntVal int64
}
