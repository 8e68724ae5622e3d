package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"crossexchange/internal/config"
	"crossexchange/internal/gather"
	"crossexchange/internal/store"
	"crossexchange/internal/util"
)

func main() {
	once := flag.Bool("once", false, "poll a single time and exit")
	symbols := flag.String("symbols", "", "comma-separated symbols (overrides gather.symbols)")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfgPath := "config/crossexchange.yaml"
	if p := os.Getenv("CROSSEXCHANGE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *symbols != "" {
		cfg.Gather.Symbols = strings.Split(*symbols, ",")
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatalf("alpaca credentials are required (APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gather.NewAlpacaClient(cfg.Alpaca)
	if err := run(ctx, cfg, client, *once, logger); err != nil {
		logger.Error("price-gather failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, client gather.LatestTradeClient, once bool, logger *slog.Logger) error {
	backend, err := store.Open(ctx, cfg.Storage, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	g, err := gather.NewPriceGatherer(client, backend.PriceLog, cfg.Gather)
	if err != nil {
		return err
	}

	if once {
		n, err := g.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("polling prices: %w", err)
		}
		logger.Info("price poll complete", "appended", n)
		return nil
	}
	return gather.RunAll(ctx, logger, g)
}
