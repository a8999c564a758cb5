package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tunecast/internal/adapters"
	"tunecast/internal/catalog"
	"tunecast/internal/distribution"
	disthandler "tunecast/internal/distribution/handler"
	distmetrics "tunecast/internal/distribution/metrics"
	"tunecast/internal/distribution/service"
	"tunecast/internal/eligibility"
	"tunecast/internal/isrc"
	"tunecast/internal/jwttoken"
	"tunecast/internal/platform/config"
	"tunecast/internal/platform/httpserver"
	"tunecast/internal/platform/logger"
	"tunecast/internal/platform/metrics"
	"tunecast/internal/platform/postgres"
	platformredis "tunecast/internal/platform/redis"
	"tunecast/internal/queue"
	"tunecast/internal/retry"
	"tunecast/internal/royalty"
	httptransport "tunecast/internal/transport/http"
	"tunecast/internal/webhook"
	"tunecast/internal/worker"
	id "tunecast/pkg/domain"
)

// main wires dependencies and owns the process lifecycle: HTTP server plus
// the submission worker pool, torn down together on SIGINT/SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Postgres is optional in development; without it everything
	// runs on the in-memory stores.
	var distStore distribution.Store
	var isrcStore isrc.Store
	var royaltyStore royalty.Store
	var reconcileStore webhook.ReconcileStore

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		distStore = distribution.NewPostgres(db)
		isrcStore = isrc.NewPostgres(db)
		royaltyStore = royalty.NewPostgres(db)
		reconcileStore = webhook.NewPostgresReconcileStore(db)
	} else {
		log.Warn("no database configured, using in-memory stores")
		distStore = distribution.NewInMemoryStore()
		isrcStore = isrc.NewInMemoryStore()
		royaltyStore = royalty.NewInMemoryStore()
		reconcileStore = webhook.NewInMemoryReconcileStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	var locker isrc.Locker
	var deduper webhook.Deduper
	if redisClient != nil {
		defer redisClient.Close()
		locker = isrc.NewRedisLocker(redisClient)
		deduper = webhook.NewRedisDeduper(redisClient)
	} else {
		log.Warn("no redis configured, using in-process lock and dedupe")
		locker = isrc.NewInProcessLocker()
		deduper = webhook.NewMemoryDeduper()
	}

	// Job queue. Kafka when brokers are configured, channel queue otherwise.
	var jobs queue.Queue
	var consumer queue.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := queue.NewKafka(cfg.Kafka, log)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		if err := kafka.EnsureTopic(ctx, 8); err != nil {
			log.Error("failed to ensure jobs topic", "error", err)
			os.Exit(1)
		}
		jobs, consumer = kafka, kafka
	} else {
		log.Warn("no kafka brokers configured, using in-process queue")
		memory := queue.NewMemory(1024)
		defer memory.Close()
		jobs, consumer = memory, memory
	}

	httpMetrics := metrics.New()
	dMetrics := distmetrics.New()

	// Services.
	releases := catalog.NewInMemoryCatalog()
	registry := isrc.NewService(cfg.Registry, isrcStore, locker, log,
		isrc.WithIssuedCounter(dMetrics.IsrcIssued))
	if err := seedCatalog(ctx, releases, registry, cfg.Seed, log); err != nil {
		log.Error("failed to seed catalog", "error", err)
		os.Exit(1)
	}
	validator := eligibility.NewValidator(registry)
	orchestrator := service.New(releases, validator, distStore, jobs, dMetrics, log)
	retries := retry.New(distStore, jobs, dMetrics, log, cfg.Worker.RetryBudget)
	royalties := royalty.New(royaltyStore, distStore, royalty.FeeSchedule{
		PlatformFeePercent: cfg.Royalty.PlatformFeePercent,
		ServiceFeePercent:  cfg.Royalty.ServiceFeePercent,
	}, log)

	signer, err := webhook.NewSigner(cfg.WebhookMasterSecret)
	if err != nil {
		log.Error("failed to derive webhook keys", "error", err)
		os.Exit(1)
	}
	webhooks := webhook.New(signer, deduper, distStore, reconcileStore, dMetrics, log)

	pool := worker.New(distStore, buildAdapters(cfg), consumer, dMetrics, log,
		cfg.Worker.Concurrency, cfg.Worker.AdapterTimeout)

	router := httptransport.New(httptransport.Deps{
		Logger:       log,
		HTTPMetrics:  httpMetrics,
		JWTValidator: jwttoken.NewService(cfg.JWTSigningKey, "tunecast"),
		Distribution: disthandler.New(orchestrator, retries, royalties, log),
		Webhook:      webhook.NewHandler(webhooks),
		DB:           db,
		Redis:        redisClient,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting tunecast", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pool.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, nil
	}
	return postgres.Open(ctx, url)
}

// seedCatalog preloads one published release with a cleared registry code
// when configured; demos and the end-to-end suite run without a real catalog
// system behind them.
func seedCatalog(ctx context.Context, releases *catalog.InMemoryCatalog, registry *isrc.Service, seed config.SeedConfig, log *slog.Logger) error {
	if seed.ReleaseID == "" {
		return nil
	}
	releaseID, err := id.ParseReleaseID(seed.ReleaseID)
	if err != nil {
		return err
	}
	artistID, err := id.ParseUserID(seed.ArtistID)
	if err != nil {
		return err
	}
	release := catalog.Release{
		ID:              releaseID,
		ArtistID:        artistID,
		Title:           "Seeded Release",
		Status:          catalog.StatusPublished,
		Active:          true,
		DurationSeconds: 210,
		FileSizeBytes:   8 << 20,
	}
	releases.Put(release)

	code, err := registry.Issue(ctx, &release, nil)
	if err != nil {
		return err
	}
	if err := registry.Clear(ctx, code.Code); err != nil {
		return err
	}
	log.Info("seeded catalog release",
		"release_id", seed.ReleaseID,
		"artist_id", seed.ArtistID,
		"isrc", code.Code,
	)
	return nil
}

// buildAdapters creates one adapter per supported platform: HTTP where an
// endpoint is configured, sandbox otherwise.
func buildAdapters(cfg config.Config) *adapters.Registry {
	var all []adapters.Adapter
	for platform := range distribution.SupportedPlatforms {
		if endpoint, ok := cfg.Adapters[string(platform)]; ok {
			all = append(all, adapters.NewHTTP(platform, endpoint.BaseURL, endpoint.APIKey, cfg.Worker.AdapterTimeout))
		} else {
			all = append(all, adapters.NewSandbox(platform))
		}
	}
	return adapters.NewRegistry(all...)
}
