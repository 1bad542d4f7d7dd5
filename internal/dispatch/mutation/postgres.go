package mutation

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Renderer turns a batch of typed Command values into a single pgx.Batch
// and sends it against the pool. It is the Go analogue of the original
// implementation's accumulated-SQL-string approach in repo.rs, but the
// commands themselves — not rendered SQL — are what gets unit tested.
type Renderer struct {
	pool *pgxpool.Pool
}

// NewRenderer builds a Renderer bound to the given connection pool.
func NewRenderer(pool *pgxpool.Pool) *Renderer {
	return &Renderer{pool: pool}
}

// Flush renders every command in cmds into one pgx.Batch and sends it.
// A failure anywhere in the batch is logged and the error swallowed —
// per the engine's error-handling design, a dropped mutation batch is a
// best-effort, eventually-consistent outcome, not a tick failure; the
// next tick will re-derive the same decision from the (unmutated) state.
func (r *Renderer) Flush(ctx context.Context, label string, cmds []Command) error {
	if len(cmds) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range cmds {
		if err := render(batch, c); err != nil {
			log.Printf("[mutation] WARNING: %s: dropping unrenderable command %T: %v", label, c, err)
			continue
		}
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			log.Printf("[mutation] WARNING: %s: batch item %d failed: %v", label, i, err)
		}
	}
	return nil
}

// currRoute/currLeg reference the most recently inserted route/leg row
// on this batch's connection. A command with RouteID/LegID == 0 means
// "the route/leg this same batch just created" — pool and assign build
// their InsertLeg/BindOrder commands before a route ID exists, so they
// leave the field zero and rely on this substitution instead. pgx.Batch
// executes every queued statement in order on one connection, so
// currval sees exactly the row the preceding INSERT in this same batch
// produced.
const currRoute = `currval(pg_get_serial_sequence('route','id'))`
const currLeg = `currval(pg_get_serial_sequence('leg','id'))`

func render(b *pgx.Batch, c Command) error {
	switch cmd := c.(type) {
	case ShiftPlaces:
		b.Queue(`UPDATE leg SET place = place + 1 WHERE route_id = $1 AND place >= $2`,
			cmd.RouteID, cmd.From)
	case InsertLeg:
		if cmd.RouteID == 0 {
			b.Queue(`INSERT INTO leg (route_id, place, from_stop, to_stop, distance, reserve, status, passengers)
				VALUES (`+currRoute+`, $1, $2, $3, $4, $5, 0, $6)`,
				cmd.Place, cmd.From, cmd.To, cmd.Dist, cmd.Reserve, cmd.Passengers)
		} else {
			b.Queue(`INSERT INTO leg (route_id, place, from_stop, to_stop, distance, reserve, status, passengers)
				VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
				cmd.RouteID, cmd.Place, cmd.From, cmd.To, cmd.Dist, cmd.Reserve, cmd.Passengers)
		}
	case ResizeLeg:
		b.Queue(`UPDATE leg SET to_stop = $2, distance = $3 WHERE id = $1`,
			cmd.LegID, cmd.NewTo, cmd.NewDist)
	case UpdateReserveRange:
		b.Queue(`UPDATE leg SET reserve = reserve + $1 WHERE route_id = $2 AND place BETWEEN $3 AND $4`,
			cmd.Delta, cmd.RouteID, cmd.PlaceFrom, cmd.PlaceTo)
	case BindOrder:
		switch {
		case cmd.RouteID == 0 && cmd.LegID == 0:
			b.Queue(`UPDATE taxi_order SET status = 1, route_id = `+currRoute+`,
				leg_id = (SELECT id FROM leg WHERE route_id = `+currRoute+` AND place = $2),
				cab_id = $3, eta = $4 WHERE id = $1`,
				cmd.OrderID, cmd.Place, cmd.CabID, cmd.ETA)
		case cmd.LegID == 0:
			b.Queue(`UPDATE taxi_order SET status = 1, route_id = $2, leg_id = `+currLeg+`, cab_id = $3, eta = $4 WHERE id = $1`,
				cmd.OrderID, cmd.RouteID, cmd.CabID, cmd.ETA)
		default:
			b.Queue(`UPDATE taxi_order SET status = 1, route_id = $2, leg_id = $3, cab_id = $4, eta = $5 WHERE id = $1`,
				cmd.OrderID, cmd.RouteID, cmd.LegID, cmd.CabID, cmd.ETA)
		}
	case CreateRoute:
		b.Queue(`INSERT INTO route (cab_id, status) VALUES ($1, 1)`, cmd.CabID)
		for _, leg := range cmd.Legs {
			leg.RouteID = 0 // force the currval substitution above
			if err := render(b, leg); err != nil {
				return err
			}
		}
	case UpdateCabStatus:
		b.Queue(`UPDATE cab SET status = $2 WHERE id = $1`, cmd.CabID, cmd.Status)
	case RelocateCab:
		b.Queue(`INSERT INTO route (cab_id, status) VALUES ($1, 0)`, cmd.CabID)
		b.Queue(`INSERT INTO leg (route_id, place, from_stop, to_stop, distance, reserve, status, passengers)
			VALUES (`+currRoute+`, 0, $1, $2, $3, 0, 0, 0)`,
			cmd.FromStopID, cmd.DestStopID, cmd.Dist)
		b.Queue(`UPDATE cab SET status = 0 WHERE id = $1`, cmd.CabID)
	case ExpireOrder:
		b.Queue(`UPDATE taxi_order SET status = 6 WHERE id = $1`, cmd.OrderID)
	case CreateOrder:
		b.Queue(`INSERT INTO taxi_order (from_stand, to_stand, max_loss, max_wait, shared,
			in_pool, eta, status, received, distance, customer_id, cab_id, route_id, leg_id)
			VALUES ($1, $2, $3, 0, $4, false, $5, 1, now(), $6, $7, $8, `+currRoute+`, `+currLeg+`)`,
			cmd.From, cmd.To, cmd.MaxLoss, cmd.Shared, cmd.ETA, cmd.Dist, cmd.CustomerID, cmd.CabID)
	case ConsumeFreeTaxiOrders:
		if len(cmd.IDs) == 0 {
			return nil
		}
		b.Queue(`DELETE FROM freetaxi_order WHERE id = ANY($1)`, cmd.IDs)
	default:
		return fmt.Errorf("mutation: unknown command type %T", c)
	}
	return nil
}
