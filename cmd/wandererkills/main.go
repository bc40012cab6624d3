// Command wandererkills runs the killmail ingestion, enrichment and
// fan-out service (spec.md's OVERVIEW): a RedisQ poller feeding an
// enrichment pipeline into an in-memory event log, served over a
// polling HTTP API, a WebSocket feed and a subscriptions CRUD surface.
//
// Startup sequencing mirrors the teacher's cmd/falcon/main.go: display
// a banner, initialize shared components in dependency order, mount
// every module's routes on one chi router behind a unified huma API,
// then start background loops and block on an HTTP server until a
// shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"wandererkills/internal/api"
	"wandererkills/internal/broker"
	"wandererkills/internal/esi"
	"wandererkills/internal/eventstore"
	"wandererkills/internal/killmail"
	"wandererkills/internal/observability"
	"wandererkills/internal/platform/clock"
	"wandererkills/internal/platform/config"
	"wandererkills/internal/platform/httpfetch"
	"wandererkills/internal/platform/ratelimit"
	"wandererkills/internal/platform/telemetry"
	"wandererkills/internal/refcache"
	"wandererkills/internal/subscription"
	"wandererkills/internal/wsapi"
	"wandererkills/internal/zkb"
)

func main() {
	displayBanner()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()

	tm := telemetry.NewManager(cfg.Telemetry)
	if err := tm.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = tm.Shutdown(shutdownCtx)
	}()

	logger := slog.Default()
	numCPU := runtime.NumCPU()
	logger.Info("cpu configuration", "system_cpus", numCPU, "gomaxprocs", runtime.GOMAXPROCS(0))

	clk := clock.Real{}

	limiter := ratelimit.NewLimiter()
	limiter.Register("esi", ratelimit.NewBucket(cfg.ESI.RateCapacity, cfg.ESI.RateRefillRate, clk))
	limiter.Register("zkb", ratelimit.NewBucket(cfg.ZKB.RateCapacity, cfg.ZKB.RateRefillRate, clk))

	fetcher := httpfetch.New(&http.Client{Timeout: 30 * time.Second}, limiter)
	esiClient := esi.New(fetcher, cfg.ESI)

	cache := refcache.New(clk, cfg.Cache.LiveTTL, cfg.Cache.ShipTypeTTL, cfg.Cache.NegativeTTL, esiClient.Loader())
	enricher := killmail.NewEnricher(cache, cfg.Enrich, logger)

	fanout := broker.New(cfg.Broker.SubscriberBufferSize, nil, logger)
	if cfg.Broker.RedisEnabled {
		fanout.SetBridge(broker.NewRedisBridge(cfg.Broker.RedisAddr, fanout.ServerID(), logger))
	}

	store := eventstore.New(clk, fanout, cfg.Store.MaxEventsPerSystem, logger)
	manager := subscription.NewManager()

	sink := func(ctx context.Context, km *killmail.Killmail) error {
		_, inserted := store.Insert(ctx, km.SolarSystemID, km)
		if !inserted {
			logger.Debug("duplicate killmail skipped", "killmail_id", km.KillmailID)
		}
		return nil
	}
	pipeline := killmail.NewPipeline(enricher, sink)

	var poller *zkb.Poller
	handler := func(ctx context.Context, raw zkb.RawKillmail, zkbMeta zkb.ZKBData, cutoff time.Time) error {
		km, err := pipeline.Process(ctx, raw, zkbMeta, cutoff)
		if err != nil {
			return err
		}
		if km == nil && poller != nil {
			poller.RecordSkippedOld()
		}
		return nil
	}
	poller = zkb.New(cfg.ZKB, fetcher, clk, handler, logger)

	hub := wsapi.NewHub(manager, store, fanout, cfg.OriginHost, logger)

	reporter := observability.NewReporter(poller, hub, fanout, cache, manager, store, logger)
	if err := reporter.Start(
		fmt.Sprintf("@every %s", cfg.Obs.SummaryInterval),
		fmt.Sprintf("@every %s", cfg.Obs.IndexSweepInterval),
		fmt.Sprintf("@every %s", cfg.Store.GCInterval),
		store.GarbageCollect,
	); err != nil {
		log.Fatalf("failed to start observability scheduler: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == "/socket/websocket" {
				next.ServeHTTP(w, req)
				return
			}
			middleware.Timeout(60 * time.Second)(next).ServeHTTP(w, req)
		})
	})

	humaConfig := huma.DefaultConfig("wandererkills", "1.0.0")
	humaAPI := humachi.New(r, humaConfig)

	routes := api.NewRoutes(store, manager, poller, hub, fanout, cache)
	routes.Register(humaAPI)

	r.Handle("/socket/websocket", hub)

	go poller.Run(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reporter.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	hub.Shutdown(shutdownCtx)

	logger.Info("wandererkills shutdown completed")
}

func displayBanner() {
	log.Println("wandererkills — EVE Online killmail ingestion service")
}
