package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sw1227/gradient-descent-map/internal/adapters/gsi"
	"github.com/sw1227/gradient-descent-map/internal/adapters/http"
	natsadapter "github.com/sw1227/gradient-descent-map/internal/adapters/nats"
	"github.com/sw1227/gradient-descent-map/internal/adapters/postgres"
	temporaladapter "github.com/sw1227/gradient-descent-map/internal/adapters/temporal"
	"github.com/sw1227/gradient-descent-map/internal/adapters/valkey"
	"github.com/sw1227/gradient-descent-map/internal/core/ports"
	"github.com/sw1227/gradient-descent-map/internal/core/tilecache"
	"github.com/sw1227/gradient-descent-map/internal/core/usecases"
	"github.com/sw1227/gradient-descent-map/internal/pkg/config"
	"github.com/sw1227/gradient-descent-map/internal/pkg/logging"
	"github.com/sw1227/gradient-descent-map/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("gdmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	closeLog := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Result cache
	var results ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		results = cache
	}

	// NATS
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Temporal
	var workflows ports.WorkflowStarter
	if cfg.Temporal.Enabled {
		starter, err := temporaladapter.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace, cfg.Temporal.TaskQueue)
		if err != nil {
			slog.Warn("temporal unavailable, async descents disabled", "error", err)
		} else {
			defer starter.Close()
			workflows = starter
		}
	}

	// Tile source and caches
	source := gsi.New(gsi.Config{
		URLTemplate: cfg.Tiles.URLTemplate,
		Sentinel:    cfg.Tiles.Sentinel,
		Retries:     cfg.Tiles.FetchRetries,
		Timeout:     cfg.Tiles.Timeout(),
	})
	lookupCache := tilecache.New(cfg.Descent.CacheCapacity)

	// Use cases
	descentSvc := usecases.NewDescentService(
		source,
		postgres.NewTrajectoryRepo(db),
		publisher,
		results,
		nil,
		descentConfig(cfg.Descent),
	)
	elevationSvc := usecases.NewElevationService(source, lookupCache)

	deps := &http.Dependencies{
		Descents:  descentSvc,
		Elevation: elevationSvc,
		Workflows: workflows,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Gradient Descent Map API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// In-flight descents get up to 30s to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func descentConfig(c config.DescentConfig) usecases.DescentConfig {
	return usecases.DescentConfig{
		Zoom:              c.Zoom,
		Epsilon:           c.Epsilon,
		Steps:             c.MaxSteps,
		StepLimit:         c.StepLimit,
		GradientThreshold: c.GradientThreshold,
		CacheCapacity:     c.CacheCapacity,
		SharedCache:       c.SharedCache,
		Concurrency:       c.Concurrency,
		ResultTTLSeconds:  c.ResultTTL,
		MaxBatch:          c.MaxBatch,
	}
}
