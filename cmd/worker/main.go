package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/cache"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/summary"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/tasks"
)

func main() {
	config.SetupLogger("worker", os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

	log.Info().Msg("Worker starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	config.SetupLogger("worker", cfg.App.Env, cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	broker := queue.NewRedisBroker(redisClient)
	results := queue.NewRedisResultStore(redisClient, cfg.Queue.ResultTTL)

	catalogRepo := catalog.NewRepository(pg.Pool, pg.SQL)
	listing := catalog.NewService(catalogRepo, cache.NewJSONCache(redisClient, "cache:"), cfg.Jobs.ProductCacheTTL)

	worker := queue.NewWorker(broker, results, queue.WorkerOptions{
		Queue:       cfg.Queue.Name,
		Concurrency: cfg.Queue.Concurrency,
	})
	tasks.Register(worker,
		summary.NewAggregator(summary.NewRepository(pg.Pool)),
		catalog.NewImporter(catalogRepo, listing, cfg.Jobs.ImportBatchSize),
	)

	scheduler := queue.NewScheduler(queue.NewClient(broker, results, cfg.Queue.Name))
	tasks.Schedule(scheduler, cfg.Jobs.SummaryInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	log.Info().
		Str("queue", cfg.Queue.Name).
		Int("concurrency", cfg.Queue.Concurrency).
		Dur("summary_interval", cfg.Jobs.SummaryInterval).
		Msg("Worker running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Worker stopped with error")
		return
	}
	log.Info().Msg("Worker stopped")
}
