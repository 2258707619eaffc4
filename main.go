// main.go
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"smarter-store/cmd"
	"smarter-store/internal/broadcast"
	"smarter-store/internal/data/memstore"
	"smarter-store/internal/data/repository"
	"smarter-store/internal/messaging"
	"smarter-store/internal/scheduler"
	"smarter-store/internal/usecase"
	"smarter-store/internal/wire"
	"smarter-store/pkg/clock"
	"smarter-store/pkg/database"
	"smarter-store/pkg/metrics"
	"smarter-store/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.Name, config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.String("store", config.App.StoreDriver),
		zap.Duration("hold_duration", config.Hold.Duration),
		zap.Duration("sweep_interval", config.Hold.SweepInterval),
		zap.Bool("debug", config.App.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, closeStore := openStore(ctx, config, logger)
	defer closeStore()

	m := metrics.New()
	clk := clock.Real()
	hub := broadcast.NewHub(config.Hold.SubscriberBuffer, config.Hold.KeepAliveInterval, m, logger)

	deps := usecase.Dependencies{
		Clock:     clk,
		Events:    hub,
		Lifecycle: messaging.NoopPublisher{},
		Metrics:   m,
	}

	var rdb *redis.Client
	var relay *broadcast.RedisRelay
	if config.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis not reachable, seat events stay local until it recovers", zap.Error(err))
		}
		relay = broadcast.NewRedisRelay(rdb, hub, config.Redis.ChannelPrefix, logger)
		deps.Events = relay
	}

	if config.RabbitMQ.Enabled {
		publisher, err := messaging.NewRabbitPublisher(config.RabbitMQ.URL, config.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer publisher.Close()
		deps.Lifecycle = publisher
		logger.Info("RabbitMQ publisher ready", zap.String("exchange", config.RabbitMQ.Exchange))
	}

	// Wire all dependencies
	app := wire.Wiring(repos, config, deps, hub, rdb, logger)

	sweeper := scheduler.NewExpirationSweeper(
		repos.Booking,
		app.Service.Booking,
		app.Service.Seat,
		config.Hold.SweepInterval,
		clk,
		m,
		logger,
	)

	server := cmd.NewAPIServer(app.Router, config.App.Port, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", zap.Duration("timeout", config.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.App.ShutdownTimeout)
		defer cancel()

		// streams never finish by themselves
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application stopped with error", zap.Error(err))
		return
	}
	logger.Info("Application stopped")
}

func openStore(ctx context.Context, config *utils.Config, logger *zap.Logger) (*repository.Repository, func()) {
	if config.App.StoreDriver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return memstore.New(), func() {}
	}

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Database connected successfully")

	if err := database.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	return repository.NewRepository(db, logger), db.Close
}
