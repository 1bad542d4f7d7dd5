// Package dispatch orchestrates one full tick of the pipeline: Route
// Extender, then the Pool Builder at decreasing pool sizes, then the
// Fallback Assigner, then the Relocator — each stage narrowing the
// shared demand/supply working sets before handing off, matching the
// "thread-local to the stage that owns them" ownership-transfer design.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shiva/dispatch/config"
	"github.com/shiva/dispatch/internal/dispatch/assign"
	"github.com/shiva/dispatch/internal/dispatch/extender"
	"github.com/shiva/dispatch/internal/dispatch/freetaxi"
	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/dispatch/pool"
	"github.com/shiva/dispatch/internal/dispatch/relocate"
	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
	"github.com/shiva/dispatch/internal/repository"
)

// Sources is every read dependency one tick needs, held as concrete
// repository types backed by the Postgres pool.
type Sources struct {
	Stops     *repository.StopRepository
	Orders    *repository.OrderRepository
	Cabs      *repository.CabRepository
	Routes    *repository.RouteRepository
	Stats     *repository.StatRepository
	FreeTaxis *repository.FreeTaxiOrderRepository
}

// Engine runs the per-tick dispatch pipeline against a fixed stop
// network and distance matrix, reading demand/supply from Sources and
// flushing mutations through a mutation.Renderer.
type Engine struct {
	cfg       config.DispatchConfig
	glpkCfg   config.GlpkConfig
	sources   Sources
	renderer  *mutation.Renderer
	matrix    *geo.Matrix
	stops     map[int64]model.Stop
	relocator relocate.Strategy
}

// NewEngine builds an Engine. The distance matrix is loaded once at
// startup — either from cfg.DistanceMatrixPath if set, or derived from
// the stop network via Haversine — matching §7a's "fatal at init"
// design for bad input data.
func NewEngine(cfg config.DispatchConfig, glpkCfg config.GlpkConfig, sources Sources, renderer *mutation.Renderer, stops []model.Stop) *Engine {
	var matrix *geo.Matrix
	if cfg.DistanceMatrixPath != "" {
		m, err := geo.LoadFromCSV(cfg.DistanceMatrixPath, len(stops))
		if err != nil {
			panic(fmt.Sprintf("dispatch: load distance matrix: %v", err))
		}
		matrix = m
	} else {
		matrix = geo.NewMatrix(stops, cfg.CabSpeedKmph)
	}

	return &Engine{
		cfg:       cfg,
		glpkCfg:   glpkCfg,
		sources:   sources,
		renderer:  renderer,
		matrix:    matrix,
		stops:     repository.ByID(stops),
		relocator: relocate.NewStrategy(cfg.RelocationStrategy, relocate.Config{BinPath: glpkCfg.BinPath, ModelPath: glpkCfg.ModelPath, OutPath: glpkCfg.OutPath}),
	}
}

// Tick runs exactly one pass of Expire -> FreeTaxi -> Extender ->
// Pool(4..2) -> Assign -> Relocate, flushing each stage's mutations through an
// independent errgroup worker that Tick joins before returning. Ticks
// never overlap — the caller's loop is expected to skip a tick if the
// previous one is still running rather than invoke Tick concurrently.
// The expire pass runs first and commits directly through the order
// repository rather than through the renderer, so a RECEIVED order
// past MaxAssignTimeMinutes never reaches LoadPending at all.
func (e *Engine) Tick(ctx context.Context) error {
	start := time.Now()
	tickID := uuid.New().String()

	expired, err := e.sources.Orders.ExpireOlderThan(ctx, time.Duration(e.cfg.MaxAssignTimeMinutes)*time.Minute)
	if err != nil {
		log.Printf("[dispatch] WARNING: expire pass failed: %v", err)
	} else if expired > 0 {
		ordersExpired.Add(float64(expired))
		log.Printf("[dispatch] tick %s expired %d order(s) older than %d minutes", tickID, expired, e.cfg.MaxAssignTimeMinutes)
	}

	orders, err := e.sources.Orders.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: load pending orders: %w", err)
	}
	cabs, err := e.sources.Cabs.LoadFree(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: load free cabs: %w", err)
	}
	legs, err := e.sources.Routes.LoadActiveLegs(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: load active legs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// ── Stage 0: Free-taxi fast path ──────────────────────
	// Pinned-cab requests are resolved first and removed from the free
	// cab supply before any matching/pooling stage can see them, so a
	// customer's explicit cab choice always wins a race against pooling.
	if e.sources.FreeTaxis != nil {
		freeTaxiOrders, err := e.sources.FreeTaxis.LoadPending(ctx)
		if err != nil {
			log.Printf("[dispatch] WARNING: load freetaxi orders failed: %v", err)
		} else if len(freeTaxiOrders) > 0 {
			var freeTaxiCmds []mutation.Command
			cabs, freeTaxiCmds = freetaxi.Process(freeTaxiOrders, cabs, e.matrix)
			g.Go(func() error { return e.renderer.Flush(gctx, tickID+":freetaxi", freeTaxiCmds) })
		}
	}

	// ── Stage 1: Route Extender ──────────────────────────
	unplaced, extCmds := extender.Extend(orders, legs, e.matrix, e.stops, extender.Config{
		MaxLegs:         e.cfg.MaxLegs,
		MaxAngle:        e.cfg.MaxAngle,
		ExtendMargin:    e.cfg.ExtendMargin,
		StopWaitMinutes: e.cfg.StopWaitMinutes,
		MaxExtenderSize: e.cfg.MaxExtenderSize,
	})
	ordersPlaced.WithLabelValues("extender").Add(float64(len(orders) - len(unplaced)))
	g.Go(func() error { return e.renderer.Flush(gctx, tickID+":extender", extCmds) })

	// ── Stage 2: Pool Builder, decreasing pool sizes ─────
	demand := unplaced
	maxInPool := e.cfg.MaxInPool
	if maxInPool < 2 {
		maxInPool = 2
	}
	for size := maxInPool; size >= 2; size-- {
		results, poolCmds, err := pool.FindPool(ctx, size, demand, cabs, e.matrix, e.stops, pool.Config{
			MaxAngle:             e.cfg.MaxAngle,
			PoolThreads:          e.cfg.PoolThreads,
			PoolDedupDropoffsToo: e.cfg.PoolDedupDropoffsToo,
		})
		if err != nil {
			return fmt.Errorf("dispatch: pool size %d: %w", size, err)
		}
		size := size
		poolSizeFound.WithLabelValues(strconv.Itoa(size)).Add(float64(len(results)))
		ordersPlaced.WithLabelValues(fmt.Sprintf("pool-%d", size)).Add(float64(len(results) * size))
		g.Go(func() error { return e.renderer.Flush(gctx, fmt.Sprintf("%s:pool-%d", tickID, size), poolCmds) })
		demand, cabs = narrowAfterPool(demand, cabs, results)
	}

	// ── Stage 3: Fallback Assigner ────────────────────────
	assignResults, stillUnmatched, assignCmds := assign.Assign(demand, cabs, e.matrix, assign.Config{})
	ordersPlaced.WithLabelValues("assign").Add(float64(len(assignResults)))
	ordersUnmatched.Set(float64(len(stillUnmatched)))
	g.Go(func() error { return e.renderer.Flush(gctx, tickID+":assign", assignCmds) })
	cabs = narrowAfterAssign(cabs, assignResults)

	// ── Stage 4: Relocator ────────────────────────────────
	stopList := make([]model.Stop, 0, len(e.stops))
	for _, s := range e.stops {
		stopList = append(stopList, s)
	}
	relocateCmds, err := e.relocator.Relocate(ctx, cabs, stopList, e.matrix)
	if err != nil {
		log.Printf("[dispatch] WARNING: relocator failed: %v", err)
	} else {
		g.Go(func() error { return e.renderer.Flush(gctx, tickID+":relocate", relocateCmds) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch: flush stage: %w", err)
	}

	if err := e.sources.Stats.Increment(ctx, []model.Stat{
		{Name: "tick_orders_received", IntVal: int64(len(orders))},
		{Name: "tick_orders_unmatched", IntVal: int64(len(stillUnmatched))},
	}); err != nil {
		log.Printf("[dispatch] WARNING: stat increment failed: %v", err)
	}

	elapsed := time.Since(start)
	tickDuration.Observe(elapsed.Seconds())
	log.Printf("[dispatch] tick %s complete in %s: orders=%d unmatched=%d", tickID, elapsed, len(orders), len(stillUnmatched))
	return nil
}

// narrowAfterPool removes every order and cab consumed by an accepted
// pool, so the next (smaller) pool size search and the fallback
// assigner only ever see demand/supply still up for grabs.
func narrowAfterPool(demand []model.Order, cabs []model.Cab, results []pool.Result) ([]model.Order, []model.Cab) {
	if len(results) == 0 {
		return demand, cabs
	}
	takenOrders := make(map[int64]bool)
	takenCabs := make(map[int64]bool)
	for _, r := range results {
		takenCabs[r.Cab.ID] = true
		for _, o := range r.Orders {
			takenOrders[o.ID] = true
		}
	}
	return filterOrders(demand, takenOrders), filterCabs(cabs, takenCabs)
}

func narrowAfterAssign(cabs []model.Cab, results []assign.Result) []model.Cab {
	if len(results) == 0 {
		return cabs
	}
	taken := make(map[int64]bool, len(results))
	for _, r := range results {
		taken[r.Cab.ID] = true
	}
	return filterCabs(cabs, taken)
}

func filterOrders(orders []model.Order, exclude map[int64]bool) []model.Order {
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if !exclude[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

func filterCabs(cabs []model.Cab, exclude map[int64]bool) []model.Cab {
	out := make([]model.Cab, 0, len(cabs))
	for _, c := range cabs {
		if !exclude[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
