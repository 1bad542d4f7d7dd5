// Command dispatcher runs the minibus/taxi dispatch engine's tick loop
// alongside an optional HTTP admin/inspection surface.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/dispatch/config"
	"github.com/shiva/dispatch/internal/dispatch"
	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/handler"
	"github.com/shiva/dispatch/internal/middleware"
	"github.com/shiva/dispatch/internal/repository"
	"github.com/shiva/dispatch/pkg/cache"
	"github.com/shiva/dispatch/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("postgres connected")

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("redis connected")

	stopRepo := repository.NewStopRepository(pgPool)
	orderRepo := repository.NewOrderRepository(pgPool)
	cabRepo := repository.NewCabRepository(pgPool)
	routeRepo := repository.NewRouteRepository(pgPool)
	statRepo := repository.NewStatRepository(pgPool)
	freeTaxiRepo := repository.NewFreeTaxiOrderRepository(pgPool)

	stops, err := stopRepo.LoadAll(ctx)
	if err != nil {
		log.Fatalf("failed to load stop network: %v", err)
	}
	if len(stops) == 0 {
		log.Fatalf("stop network is empty, nothing to dispatch against")
	}

	renderer := mutation.NewRenderer(pgPool)
	engine := dispatch.NewEngine(cfg.Dispatch, cfg.Glpk, dispatch.Sources{
		Stops:     stopRepo,
		Orders:    orderRepo,
		Cabs:      cabRepo,
		Routes:    routeRepo,
		Stats:     statRepo,
		FreeTaxis: freeTaxiRepo,
	}, renderer, stops)

	// ── Tick loop ───────────────────────────────────────
	var ticking int32
	ticker := time.NewTicker(cfg.Dispatch.TickInterval)
	tickCtx, cancelTicks := context.WithCancel(ctx)
	tickLoopDone := make(chan struct{})
	go func() {
		defer close(tickLoopDone)
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				// Ticks do not overlap: a slow tick causes the next
				// signal to be skipped rather than queued.
				if !atomic.CompareAndSwapInt32(&ticking, 0, 1) {
					log.Println("[dispatch] WARNING: previous tick still running, skipping this interval")
					continue
				}
				if err := engine.Tick(ctx); err != nil {
					log.Printf("[dispatch] tick error: %v", err)
				}
				atomic.StoreInt32(&ticking, 0)
			}
		}
	}()

	// ── Admin HTTP surface ──────────────────────────────
	adminHandler := handler.NewAdminHandler(stopRepo, orderRepo, cabRepo, engine)
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	admin := router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/stops", adminHandler.ListStops).Methods(http.MethodGet)
	admin.HandleFunc("/orders/pending", adminHandler.PendingOrders).Methods(http.MethodGet)
	admin.HandleFunc("/cabs/free", adminHandler.FreeCabs).Methods(http.MethodGet)
	admin.HandleFunc("/tick", adminHandler.TriggerTick).Methods(http.MethodPost)

	httpHandler := middleware.Recoverer(middleware.RequestLogger(router))
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("admin surface listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	// ── Graceful shutdown: a tick in flight is allowed to finish ─
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down dispatcher...")

	ticker.Stop()
	cancelTicks()
	<-tickLoopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("admin server forced to shutdown: %v", err)
	}

	log.Println("dispatcher gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
