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

	"github.com/aaronwang/lot-auction/api-gateway/internal/auction"
	"github.com/aaronwang/lot-auction/api-gateway/internal/handlers"
	redisClient "github.com/aaronwang/lot-auction/api-gateway/internal/redis"
	"github.com/aaronwang/lot-auction/api-gateway/internal/service"
	"github.com/aaronwang/lot-auction/shared/logging"
	"github.com/aaronwang/lot-auction/shared/storage"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("api-gateway", cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("API Gateway stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("API Gateway stopped gracefully")
}

func run(cfg *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to Redis", slog.String("addr", cfg.Redis.Addr))
	redis, err := redisClient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redis.Close()

	logger.Info("Connecting to NATS", slog.String("url", cfg.NatsURL))
	natsConn, err := nats.Connect(cfg.NatsURL, nats.Name("api-gateway"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConn.Close()

	archive, err := service.NewArchivePublisher(natsConn, logger)
	if err != nil {
		return err
	}

	dispatcher := service.NewDispatcher(logger, redis, archive)
	engine := auction.NewEngine(cfg.Engine.toAuction(),
		auction.WithNotifier(dispatcher),
		auction.WithLogger(logger),
	)

	auctionService, err := service.NewAuctionService(engine, logger, cfg.Engine.IdempotencyCacheSize)
	if err != nil {
		return err
	}

	if cfg.RestoreFromArchive && cfg.PostgresURL != "" {
		if err := restore(ctx, cfg.PostgresURL, auctionService, logger); err != nil {
			return err
		}
	}

	handler := handlers.NewHandler(auctionService, logger, redis)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("API Gateway listening", slog.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return engine.RunSweeper(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", slog.Any("error", err))
		}
		if err := dispatcher.Wait(shutdownCtx); err != nil {
			logger.Warn("Undelivered events at shutdown", slog.Any("error", err))
		}
		return nil
	})

	return g.Wait()
}

// restore reloads lots that were still open when the gateway last stopped.
// The archive is written asynchronously, so the most recent events before a
// crash may be missing.
func restore(ctx context.Context, postgresURL string, svc *service.AuctionService, logger *slog.Logger) error {
	store, err := storage.NewStore(ctx, postgresURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	n, err := svc.Restore(ctx, store)
	if err != nil {
		return err
	}
	logger.Info("Restored open lots from archive", slog.Int("lots", n))
	return nil
}
