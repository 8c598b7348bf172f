package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/openterrain/resolver/internal/breaker"
	"github.com/openterrain/resolver/internal/core/config"
	"github.com/openterrain/resolver/internal/core/httpclient"
	"github.com/openterrain/resolver/internal/core/observability"
	"github.com/openterrain/resolver/internal/core/server"
	"github.com/openterrain/resolver/internal/crs"
	"github.com/openterrain/resolver/internal/index"
	"github.com/openterrain/resolver/internal/index/loader"
	"github.com/openterrain/resolver/internal/limiter"
	"github.com/openterrain/resolver/internal/logger"
	"github.com/openterrain/resolver/internal/raster"
	"github.com/openterrain/resolver/internal/refresh"
	"github.com/openterrain/resolver/internal/refresh/kafkainval"
	"github.com/openterrain/resolver/internal/resolver"
	"github.com/openterrain/resolver/internal/resultcache"
	"github.com/openterrain/resolver/internal/scoring"
	"github.com/openterrain/resolver/internal/source/apisource"
	"github.com/openterrain/resolver/internal/source/demsource"
	"github.com/openterrain/resolver/internal/statestore"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "resolverd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting elevation resolver",
		"addr", cfg.Addr,
		"version", Version,
		"index_source", cfg.IndexSource,
		"state_driver", cfg.StateDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tables, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		appLog.Error("failed to load resolution tables", "err", err)
		return 1
	}

	var store statestore.Store
	switch cfg.StateDriver {
	case "memory":
		appLog.Warn("using in-memory state store: circuit breakers and quotas " +
			"are NOT shared across instances; do not run more than one replica")
		store = statestore.NewMemory()
	default:
		rs, err := statestore.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("failed to connect state store", "err", err)
			return 1
		}
		store = rs
	}
	defer func() { _ = store.Close() }()

	brkSettings := make(map[string]breaker.Settings, len(tables.Backends))
	for _, b := range tables.Backends {
		brkSettings[b.Name] = breaker.Settings{
			Threshold:       b.BreakerThreshold,
			RecoveryTimeout: b.RecoveryTimeout,
		}
	}
	brk := breaker.New(store, brkSettings)
	rate := limiter.NewRateLimiter(store)
	cost := limiter.NewCostBudget(store)

	transformer := crs.New()
	idx := index.New(true)
	httpClient := httpclient.NewOutbound()
	ldr := loader.New(httpClient)

	refresher := refresh.New(appLog, ldr, idx, cfg.IndexSource)
	if err := refresher.Reload(ctx); err != nil {
		appLog.Error("initial index load failed", "err", err)
		return 1
	}
	if err := refresher.Start(ctx, cfg.Refresh.Schedule); err != nil {
		appLog.Error("failed to schedule index refresh", "err", err)
		return 1
	}
	if cfg.Refresh.KafkaEnabled {
		consumer := kafkainval.New(kafkainval.Config{
			Brokers: strings.Split(cfg.Refresh.KafkaBrokers, ","),
			Topic:   cfg.Refresh.KafkaTopic,
			GroupID: cfg.Refresh.KafkaGroupID,
		}, appLog, refresher)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("collection update consumer stopped", "err", err)
			}
		}()
	}

	regions, err := scoring.NewRegionTable(tables.Regions)
	if err != nil {
		appLog.Error("invalid region table", "err", err)
		return 1
	}
	scorer := scoring.NewScorer(tables.Scoring, regions)
	policy := scoring.NewPolicy(tables.Scoring)

	sampler := raster.NewHGT(cfg.RasterDir)

	var backends []resolver.Backend
	for _, entry := range tables.OrderedBackends() {
		switch entry.Kind {
		case "dem":
			src := demsource.New(demsource.Config{
				Name:          entry.Name,
				Timeout:       entry.Timeout,
				DailyBudgetGB: entry.DailyBudgetGB,
				Workers:       cfg.RasterWorkers,
				Queue:         cfg.RasterQueue,
			}, sampler, transformer, brk, cost, appLog)
			backends = append(backends, resolver.Backend{Entry: entry, Adapter: src})
		case "api":
			src, err := apisource.New(apisource.Config{
				Name:    entry.Name,
				URL:     entry.URL,
				Flavor:  entry.Flavor,
				APIKey:  os.Getenv(entry.APIKeyEnv),
				Timeout: entry.Timeout,
				Limits: limiter.Limits{
					PerSecond: entry.RequestsPerSecond,
					PerDay:    entry.RequestsPerDay,
				},
			}, httpClient, brk, rate, appLog)
			if err != nil {
				appLog.Error("failed to build api backend", "backend", entry.Name, "err", err)
				return 1
			}
			backends = append(backends, resolver.Backend{Entry: entry, Adapter: src})
		}
	}
	if len(backends) == 0 {
		appLog.Error("no backends configured")
		return 1
	}

	cache := resultcache.New(cfg.ResultCacheSize, cfg.ResultCacheTTL)
	res := resolver.New(appLog, idx, scorer, policy, backends, cache)
	ops := resolver.NewOps(res, brk, rate, cost)

	if err := server.Run(ctx, cfg, appLog, ops); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}
	appLog.Info("shutdown complete")
	return 0
}
