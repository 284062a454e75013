package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/aaronwang/lot-auction/broadcast-service/internal/redis"
	wsHandler "github.com/aaronwang/lot-auction/broadcast-service/internal/websocket"
	"github.com/aaronwang/lot-auction/shared/config"
	"github.com/aaronwang/lot-auction/shared/logging"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("broadcast-service", cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Broadcast Service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Broadcast Service stopped gracefully")
}

func run(cfg *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to Redis", slog.String("addr", cfg.RedisAddr))
	subscriber, err := redisClient.NewSubscriber(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	if err := subscriber.SubscribeAll(ctx); err != nil {
		return err
	}
	logger.Info("Subscribed to lot events")

	wsManager := wsHandler.NewManager(logger)
	handler := wsHandler.NewHandler(wsManager, subscriber, logger)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	messageChan := make(chan *redisClient.Message, 256)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsManager.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return subscriber.Listen(gctx, messageChan)
	})

	// Redis Pub/Sub -> WebSocket
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case msg := <-messageChan:
				wsManager.Broadcast(msg.LotID, msg.Payload)
			}
		}
	})

	g.Go(func() error {
		logger.Info("Broadcast Service listening", slog.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", slog.Any("error", err))
		}
		return nil
	})

	return g.Wait()
}

// Config holds application configuration
type Config struct {
	ServerAddr    string         `toml:"server_addr"`
	RedisAddr     string         `toml:"redis_addr"`
	RedisPassword string         `toml:"redis_password"`
	RedisDB       int            `toml:"redis_db"`
	Log           logging.Config `toml:"log"`
}

// loadConfig applies CONFIG_FILE over the defaults, then the environment
func loadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddr: ":8081",
		RedisAddr:  "localhost:6379",
		Log:        logging.Config{Format: "text"},
	}
	if path := config.GetEnv("CONFIG_FILE", ""); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ServerAddr = config.GetEnv("SERVER_ADDR", cfg.ServerAddr)
	cfg.RedisAddr = config.GetEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = config.GetEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = config.GetEnvInt("REDIS_DB", cfg.RedisDB)
	if level := config.GetEnv("LOG_LEVEL", ""); level != "" {
		cfg.Log.Level = logging.ParseLevel(level)
	}
	cfg.Log.Format = config.GetEnv("LOG_FORMAT", cfg.Log.Format)
	return cfg, nil
}
