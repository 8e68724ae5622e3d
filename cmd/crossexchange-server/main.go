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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"crossexchange/internal/api"
	"crossexchange/internal/config"
	"crossexchange/internal/engine"
	"crossexchange/internal/events"
	"crossexchange/internal/lock"
	"crossexchange/internal/store"
	"crossexchange/internal/telemetry"
	"crossexchange/internal/util"
)

func main() {
	_ = godotenv.Load(".env")

	cfgPath := "config/crossexchange.yaml"
	if p := os.Getenv("CROSSEXCHANGE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("crossexchange-server starting",
		"host", cfg.Server.Host,
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
		"storage", cfg.Storage.Driver,
	)
	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("crossexchange-server stopped")
}

// run serves until ctx is cancelled. started, if non-nil, receives the
// server once it is constructed.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, started chan<- *api.Server) error {
	backend, err := store.Open(ctx, cfg.Storage, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	stopTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initialising telemetry: %w", err)
	}
	defer func() {
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := stopTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	hub := api.NewHub(logger)
	publisher, closePublisher := newPublisher(cfg, hub, logger)
	defer closePublisher()

	executor, err := engine.NewExecutor(engine.Deps{
		Prices:     backend.Prices,
		Catalog:    backend.Catalog,
		Portfolios: backend.Portfolios,
		Trades:     backend.Trades,
		Locker:     locker,
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Executor:   executor,
		PriceLog:   backend.PriceLog,
		Portfolios: backend.Portfolios,
		Admin:      backend.Admin,
		Hub:        hub,
		Logger:     logger,
	})
	if started != nil {
		started <- srv
	}
	return srv.ListenAndServe(ctx)
}

// newLocker picks the portfolio lock per trading.lock_driver.
func newLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Locker, func(), error) {
	switch cfg.Trading.LockDriver {
	case "", "local":
		return lock.NewLocal(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		l := lock.NewRedis(client, lock.RedisConfig{TTL: cfg.Trading.LockTTL}, logger)
		return l, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock driver %q", cfg.Trading.LockDriver)
	}
}

// newPublisher fans trade events out to the websocket hub and, when brokers
// are configured, to Kafka.
func newPublisher(cfg *config.Config, hub *api.Hub, logger *slog.Logger) (events.Publisher, func()) {
	pubs := events.Fanout{hub}
	if len(cfg.Kafka.Brokers) == 0 {
		return pubs, func() {}
	}

	kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	logger.Info("publishing trade events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return append(pubs, kp), func() {
		if err := kp.Close(); err != nil {
			logger.Warn("closing kafka publisher", "error", err)
		}
	}
}
