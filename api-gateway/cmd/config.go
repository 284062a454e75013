package main

import (
	"time"

	"github.com/aaronwang/lot-auction/api-gateway/internal/auction"
	"github.com/aaronwang/lot-auction/shared/config"
	"github.com/aaronwang/lot-auction/shared/logging"
)

// Config holds application configuration
type Config struct {
	ServerAddr         string         `toml:"server_addr"`
	NatsURL            string         `toml:"nats_url"`
	PostgresURL        string         `toml:"postgres_url"`
	RestoreFromArchive bool           `toml:"restore_from_archive"`
	Redis              RedisConfig    `toml:"redis"`
	Engine             EngineConfig   `toml:"engine"`
	Log                logging.Config `toml:"log"`
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// EngineConfig holds auction tunables
type EngineConfig struct {
	ExtensionWindow      config.Duration `toml:"extension_window"`
	ExtensionAmount      config.Duration `toml:"extension_amount"`
	DefaultDuration      config.Duration `toml:"default_auction_duration"`
	LockTimeout          config.Duration `toml:"lock_timeout"`
	SweepInterval        config.Duration `toml:"sweep_interval"`
	SweepConcurrency     int             `toml:"sweep_concurrency"`
	IdempotencyCacheSize int             `toml:"idempotency_cache_size"`
}

func (e EngineConfig) toAuction() auction.Config {
	return auction.Config{
		ExtensionWindow:  e.ExtensionWindow.Std(),
		ExtensionAmount:  e.ExtensionAmount.Std(),
		DefaultDuration:  e.DefaultDuration.Std(),
		LockTimeout:      e.LockTimeout.Std(),
		SweepInterval:    e.SweepInterval.Std(),
		SweepConcurrency: e.SweepConcurrency,
	}
}

func defaultConfig() *Config {
	d := auction.DefaultConfig()
	return &Config{
		ServerAddr:         ":8080",
		NatsURL:            "nats://localhost:4222",
		PostgresURL:        "",
		RestoreFromArchive: true,
		Redis:              RedisConfig{Addr: "localhost:6379"},
		Engine: EngineConfig{
			ExtensionWindow:      config.Duration(d.ExtensionWindow),
			ExtensionAmount:      config.Duration(d.ExtensionAmount),
			DefaultDuration:      config.Duration(d.DefaultDuration),
			LockTimeout:          config.Duration(d.LockTimeout),
			SweepInterval:        config.Duration(d.SweepInterval),
			SweepConcurrency:     d.SweepConcurrency,
			IdempotencyCacheSize: 4096,
		},
		Log: logging.Config{Format: "text"},
	}
}

// loadConfig starts from defaults, applies CONFIG_FILE when set, then lets
// environment variables override both
func loadConfig() (*Config, error) {
	cfg := defaultConfig()
	if path := config.GetEnv("CONFIG_FILE", ""); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ServerAddr = config.GetEnv("SERVER_ADDR", cfg.ServerAddr)
	cfg.NatsURL = config.GetEnv("NATS_URL", cfg.NatsURL)
	cfg.PostgresURL = config.GetEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.RestoreFromArchive = config.GetEnvBool("RESTORE_FROM_ARCHIVE", cfg.RestoreFromArchive)
	cfg.Redis.Addr = config.GetEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = config.GetEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = config.GetEnvInt("REDIS_DB", cfg.Redis.DB)

	e := &cfg.Engine
	e.ExtensionWindow = envDuration("EXTENSION_WINDOW", e.ExtensionWindow)
	e.ExtensionAmount = envDuration("EXTENSION_AMOUNT", e.ExtensionAmount)
	e.DefaultDuration = envDuration("DEFAULT_AUCTION_DURATION", e.DefaultDuration)
	e.LockTimeout = envDuration("LOCK_TIMEOUT", e.LockTimeout)
	e.SweepInterval = envDuration("SWEEP_INTERVAL", e.SweepInterval)
	e.SweepConcurrency = config.GetEnvInt("SWEEP_CONCURRENCY", e.SweepConcurrency)
	e.IdempotencyCacheSize = config.GetEnvInt("IDEMPOTENCY_CACHE_SIZE", e.IdempotencyCacheSize)

	if level := config.GetEnv("LOG_LEVEL", ""); level != "" {
		cfg.Log.Level = logging.ParseLevel(level)
	}
	cfg.Log.Format = config.GetEnv("LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

func envDuration(key string, current config.Duration) config.Duration {
	return config.Duration(config.GetEnvDuration(key, time.Duration(current)))
}
