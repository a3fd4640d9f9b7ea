package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	tclient "go.temporal.io/sdk/client"

	"scholarag/internal/answer"
	"scholarag/internal/api"
	"scholarag/internal/cache"
	"scholarag/internal/config"
	"scholarag/internal/logging"
	"scholarag/internal/metrics"
	"scholarag/internal/observability"
	"scholarag/internal/pipeline"
	"scholarag/internal/providers"
	"scholarag/internal/retry"
	"scholarag/internal/storage"
	"scholarag/internal/vector"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel)

	ctx := context.Background()
	shutdownTracing, err := observability.Init(ctx, "scholarag-api", cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("init tracing")
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(dbCtx, cfg.PostgresURL)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer db.Close()
	if err := db.EnsureSchema(dbCtx, cfg.EmbedDim, cfg.DistanceMetric); err != nil {
		log.WithError(err).Fatal("ensure schema")
	}

	pm, err := providers.NewManager(cfg)
	if err != nil {
		log.WithError(err).Fatal("build providers")
	}
	policy := retry.FromConfig(cfg, logging.Component(log, "retry"))

	searchProvider, _ := pm.SearchProvider()
	var search pipeline.Searcher = searchProvider
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, search cache disabled")
		} else {
			defer rdb.Close()
			search = cache.NewSearchCache(searchProvider, rdb, cfg.SearchCacheTTL, logging.Component(log, "search-cache"))
		}
	}

	embedProvider, _ := pm.EmbedProvider()
	store := vector.NewPGStore(db.Pool, cfg.DistanceMetric, cfg.EmbedDim, cfg.EmbedVersion)
	audit := storage.NewLLMAuditRepo(db, logging.Component(log, "llm-audit"))
	interactions := storage.NewInteractionRepo(db)

	gen := answer.NewGenerator(pm, policy, cfg.GenTemperature, audit, logging.Component(log, "answer"))
	p := pipeline.New(cfg, pipeline.Deps{
		Search:       search,
		Embed:        embedProvider,
		Store:        store,
		Generator:    gen,
		Papers:       storage.NewPaperRepo(db),
		Interactions: interactions,
		Policy:       policy,
		Audit:        audit,
		Observers: []pipeline.StageObserver{
			pipeline.LogObserver{Log: logging.Component(log, "pipeline")},
			metrics.StageObserver{},
			observability.StageObserver{},
		},
		Log: logging.Component(log, "pipeline"),
	})

	var tc tclient.Client
	if cfg.TemporalAddress != "" {
		tc, err = tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			log.WithError(err).Warn("temporal unavailable, corpus ingest disabled")
			tc = nil
		} else {
			defer tc.Close()
		}
	}

	srv := api.NewServer(cfg, logging.Component(log, "api"), p, interactions, storage.NewCorpusRepo(db), tc)
	log.WithFields(logrus.Fields{
		"addr":            cfg.APIAddr,
		"search_provider": cfg.SearchProviders,
		"embed_providers": cfg.EmbedProviders,
		"llm_providers":   cfg.LLMProviders,
	}).Info("api listening")
	if err := http.ListenAndServe(cfg.APIAddr, srv.Routes()); err != nil {
		log.WithError(err).Fatal("api server stopped")
	}
}
