package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sofico/sofico_wallet/internal/config"
	"github.com/sofico/sofico_wallet/internal/infra"
	"github.com/sofico/sofico_wallet/internal/logging"
	"github.com/sofico/sofico_wallet/internal/notification"
	"github.com/sofico/sofico_wallet/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err := run(cfg, logger); err != nil {
		logger.Error("wallet service stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := infra.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = pool
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", slog.Any("error", err))
			}
		}()
		cache = client
	}

	var events notification.MessageWriter
	if writer := infra.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger); writer != nil {
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("close kafka writer", slog.Any("error", err))
			}
		}()
		events = writer
	}

	srv, err := server.New(cfg, db, cache, events, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	logger.Info("wallet service starting", slog.String("addr", cfg.Address()), slog.String("env", cfg.AppEnv))
	if err := srv.Listen(ctx); err != nil {
		return err
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
