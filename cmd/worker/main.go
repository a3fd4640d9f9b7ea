package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"scholarag/internal/activities"
	"scholarag/internal/config"
	"scholarag/internal/logging"
	"scholarag/internal/observability"
	"scholarag/internal/storage"
	"scholarag/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel)

	shutdownTracing, err := observability.Init(context.Background(), "scholarag-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("init tracing")
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	c, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.WithError(err).Fatal("connect temporal")
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx, cfg.EmbedDim, cfg.DistanceMetric); err != nil {
		log.WithError(err).Fatal("ensure schema")
	}

	a, err := activities.New(cfg, db, logging.Component(log, "activities"))
	if err != nil {
		log.WithError(err).Fatal("build activities")
	}
	activities.Register(w, a)

	log.WithFields(logrus.Fields{
		"temporal":        cfg.TemporalAddress,
		"queue":           cfg.TemporalTaskQueue,
		"embed_providers": cfg.EmbedProviders,
	}).Info("worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.WithError(err).Fatal("worker stopped")
	}
}
