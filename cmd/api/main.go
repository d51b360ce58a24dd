package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/cache"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/summary"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/transport"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/user"
)

func main() {
	config.SetupLogger("api", os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

	log.Info().Msg("API starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	config.SetupLogger("api", cfg.App.Env, cfg.App.LogLevel)

	ctx := context.Background()

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

	tasksClient := queue.NewClient(
		queue.NewRedisBroker(redisClient),
		queue.NewRedisResultStore(redisClient, cfg.Queue.ResultTTL),
		cfg.Queue.Name,
	)

	catalogSvc := catalog.NewService(
		catalog.NewRepository(pg.Pool, pg.SQL),
		cache.NewJSONCache(redisClient, "cache:"),
		cfg.Jobs.ProductCacheTTL,
	)

	router := transport.NewRouter(
		handler.NewUserHandler(user.NewService(user.NewRepository(pg.Pool))),
		handler.NewOrderHandler(order.NewService(order.NewRepository(pg.Pool))),
		handler.NewSummaryHandler(summary.NewAggregator(summary.NewRepository(pg.Pool)), tasksClient),
		handler.NewProductHandler(catalogSvc, tasksClient, cfg.App.UploadDir),
		handler.NewTaskHandler(tasksClient),
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
