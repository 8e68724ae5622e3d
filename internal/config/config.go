package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for crossexchange.
type Config struct {
	Storage   Storage       `yaml:"storage"`
	Server    Server        `yaml:"server"`
	Alpaca    Alpaca        `yaml:"alpaca"`
	Logging   Logging       `yaml:"logging"`
	Gather    GatherConfig  `yaml:"gather"`
	Trading   TradingConfig `yaml:"trading"`
	Redis     Redis         `yaml:"redis"`
	Kafka     Kafka         `yaml:"kafka"`
	Cache     Cache         `yaml:"cache"`
	Telemetry Telemetry     `yaml:"telemetry"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	// Driver is one of "memory", "sqlite" or "postgres".
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER"`
	DataDir     string `yaml:"data_dir" env:"DATA_DIR"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	MaxConns    int32  `yaml:"max_conns"`

	// PriceArchive stores share prices as Parquet under DataDir instead of
	// in the SQL backend.
	PriceArchive bool `yaml:"price_archive" env:"PRICE_ARCHIVE"`
}

// Server holds network listener configuration.
type Server struct {
	Host            string        `yaml:"host" env:"HTTP_HOST"`
	Port            int           `yaml:"port" env:"HTTP_PORT"`
	GRPCPort        int           `yaml:"grpc_port" env:"GRPC_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key" env:"ALPACA_API_KEY"`
	APISecret string `yaml:"api_secret" env:"ALPACA_API_SECRET"`
	DataURL   string `yaml:"data_url" env:"ALPACA_DATA_URL"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// GatherConfig controls the price gatherer.
type GatherConfig struct {
	Symbols         []string      `yaml:"symbols" env:"GATHER_SYMBOLS" envSeparator:","`
	Interval        time.Duration `yaml:"interval"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Retries         int           `yaml:"retries"`
}

// TradingConfig configures trade execution.
type TradingConfig struct {
	// LockDriver is "local" (single process) or "redis".
	LockDriver string `yaml:"lock_driver" env:"LOCK_DRIVER"`

	// LockTTL is the lease of a redis portfolio lock. The lease is renewed
	// every LockTTL/3 while the trade is in flight, so it only bounds how
	// long a crashed holder blocks the portfolio.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// Redis configures the distributed lock backend.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

// Kafka configures trade event publishing. Publishing is off when Brokers is
// empty.
type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
}

// Cache configures the share catalog cache.
type Cache struct {
	MaxEntries int64         `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// Telemetry configures OpenTelemetry export. Nothing is exported when
// Endpoint is empty and Stdout is false.
type Telemetry struct {
	ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Environment string  `yaml:"environment" env:"DEPLOY_ENV"`
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Stdout      bool    `yaml:"stdout"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields a configuration
// built from environment variables and defaults alone.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		if err := finish(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func finish(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return nil
}

// applyEnvOverrides handles variables that take precedence over the tagged
// ones.
func applyEnvOverrides(cfg *Config) {
	// Canonical Alpaca SDK variables win over everything else.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.DataDir, "crossexchange.db")
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Gather.Interval == 0 {
		cfg.Gather.Interval = time.Minute
	}
	if cfg.Gather.RateLimitPerMin == 0 {
		cfg.Gather.RateLimitPerMin = 200
	}
	if cfg.Gather.Retries == 0 {
		cfg.Gather.Retries = 3
	}
	if cfg.Trading.LockDriver == "" {
		cfg.Trading.LockDriver = "local"
	}
	if cfg.Trading.LockTTL == 0 {
		cfg.Trading.LockTTL = 10 * time.Second
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "crossexchange.trades"
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10_000
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "crossexchange"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1
	}
}
