package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/sw1227/gradient-descent-map/internal/adapters/gsi"
	natsadapter "github.com/sw1227/gradient-descent-map/internal/adapters/nats"
	"github.com/sw1227/gradient-descent-map/internal/adapters/postgres"
	"github.com/sw1227/gradient-descent-map/internal/adapters/valkey"
	"github.com/sw1227/gradient-descent-map/internal/core/ports"
	"github.com/sw1227/gradient-descent-map/internal/core/usecases"
	"github.com/sw1227/gradient-descent-map/internal/pkg/config"
	"github.com/sw1227/gradient-descent-map/internal/pkg/logging"
	"github.com/sw1227/gradient-descent-map/internal/pkg/telemetry"
	"github.com/sw1227/gradient-descent-map/internal/workflows"
)

func main() {
	cfg, err := config.Load("gdmap-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	closeLog := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	defer closeLog()

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var results ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		results = cache
	}

	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	source := gsi.New(gsi.Config{
		URLTemplate: cfg.Tiles.URLTemplate,
		Sentinel:    cfg.Tiles.Sentinel,
		Retries:     cfg.Tiles.FetchRetries,
		Timeout:     cfg.Tiles.Timeout(),
	})
	descentSvc := usecases.NewDescentService(source, postgres.NewTrajectoryRepo(db), publisher, results, nil, usecases.DescentConfig{
		Zoom:              cfg.Descent.Zoom,
		Epsilon:           cfg.Descent.Epsilon,
		Steps:             cfg.Descent.MaxSteps,
		StepLimit:         cfg.Descent.StepLimit,
		GradientThreshold: cfg.Descent.GradientThreshold,
		CacheCapacity:     cfg.Descent.CacheCapacity,
		SharedCache:       cfg.Descent.SharedCache,
		Concurrency:       cfg.Descent.Concurrency,
		ResultTTLSeconds:  cfg.Descent.ResultTTL,
		MaxBatch:          cfg.Descent.MaxBatch,
	})

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Descent.Concurrency,
	})

	w.RegisterWorkflow(workflows.BatchDescentWorkflow)
	w.RegisterActivity(&workflows.DescentActivities{Descent: descentSvc})

	slog.Info("descent worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
