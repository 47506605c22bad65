package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sony/gobreaker"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/adapter/provider/cloudapi"
	"github.com/dossierlabs/dossier-messaging/internal/adapter/provider/inapp"
	"github.com/dossierlabs/dossier-messaging/internal/adapter/repository/postgres"
	"github.com/dossierlabs/dossier-messaging/internal/api"
	"github.com/dossierlabs/dossier-messaging/internal/config"
	"github.com/dossierlabs/dossier-messaging/internal/dispatcher"
	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/provider"
	"github.com/dossierlabs/dossier-messaging/internal/domain/session"
	"github.com/dossierlabs/dossier-messaging/internal/metrics"
	"github.com/dossierlabs/dossier-messaging/internal/usecase/messaging"
	"github.com/dossierlabs/dossier-messaging/internal/usecase/webhook"
	"github.com/dossierlabs/dossier-messaging/pkg/db"
	zaplog "github.com/dossierlabs/dossier-messaging/pkg/log"
	"github.com/dossierlabs/dossier-messaging/pkg/resilience"
	"github.com/dossierlabs/dossier-messaging/pkg/snowflake"
	"github.com/dossierlabs/dossier-messaging/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Domain Adapters (Bind Interfaces)
			fx.Annotate(
				postgres.NewMessageRepository,
				fx.As(new(message.Repository)),
			),
			fx.Annotate(
				postgres.NewSessionRepository,
				fx.As(new(session.Repository)),
			),
			session.NewTracker,

			// Resilience
			newBackoffSchedule,
			newLimiterRegistry,
			newBreakerRegistry,

			// Channel adapters
			newGatewayClient,
			newChannelAdapters,

			// Metrics
			metrics.NewCollector,
			newReporter,

			// Core
			newDispatcher,
			messaging.NewService,
			webhook.NewService,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("Migration up applied successfully")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied successfully")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

func registerHooks(lc fx.Lifecycle, cfg *config.Config, router *api.Router, disp *dispatcher.Dispatcher, reporter *metrics.Reporter, logger *zap.Logger) {
	var dispatcherCancel context.CancelFunc
	var reporterCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			dispatcherCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			dispatcherCancel = cancel
			go disp.Run(dispatcherCtx)

			reporterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			reporterCancel = cancel
			go reporter.Run(reporterCtx)

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			if dispatcherCancel != nil {
				dispatcherCancel()
			}
			if reporterCancel != nil {
				reporterCancel()
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}

func newBackoffSchedule(cfg *config.Config) resilience.BackoffSchedule {
	return resilience.NewBackoffSchedule(cfg.BackoffMinutes)
}

func newLimiterRegistry(cfg *config.Config) *resilience.LimiterRegistry {
	return resilience.NewLimiterRegistry(resilience.LimiterConfig{
		ChannelRPM: cfg.ChannelRPM,
		TierRPM:    cfg.TierRPM,
		DefaultRPM: cfg.DefaultRPM,
	})
}

func newBreakerRegistry(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) *resilience.BreakerRegistry {
	return resilience.NewBreakerRegistry(
		resilience.BreakerConfig{
			FailureRateThreshold: cfg.BreakerFailureRate,
			MinCalls:             uint32(cfg.BreakerMinCalls),
			WindowSize:           cfg.BreakerWindowSize,
			OpenWait:             cfg.BreakerOpenWait,
			HalfOpenCalls:        uint32(cfg.BreakerHalfOpenCalls),
		},
		func(channel message.Channel, from, to gobreaker.State) {
			collector.IncBreakerTransition(channel, from.String(), to.String())
			logger.Warn("circuit_breaker_state_change",
				zap.String("channel", string(channel)),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	)
}

func newGatewayClient(cfg *config.Config) *cloudapi.Client {
	return cloudapi.NewClient(cloudapi.Config{
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
		Timeout: cfg.AdapterTimeout,
	})
}

func newChannelAdapters(gateway *cloudapi.Client) []provider.ChannelAdapter {
	return []provider.ChannelAdapter{
		cloudapi.NewAdapter(gateway),
		inapp.NewAdapter(),
	}
}

func newReporter(cfg *config.Config, repo message.Repository, collector *metrics.Collector, logger *zap.Logger) *metrics.Reporter {
	return metrics.NewReporter(repo, collector, logger, cfg.MetricsInterval, cfg.StaleSendingAfter)
}

func newDispatcher(
	cfg *config.Config,
	repo message.Repository,
	tracker *session.Tracker,
	adapters []provider.ChannelAdapter,
	breakers *resilience.BreakerRegistry,
	limiters *resilience.LimiterRegistry,
	backoff resilience.BackoffSchedule,
	collector *metrics.Collector,
	logger *zap.Logger,
) *dispatcher.Dispatcher {
	return dispatcher.New(repo, tracker, adapters, breakers, limiters, backoff, collector, logger, dispatcher.Config{
		Workers:        cfg.DispatcherWorkers,
		BatchSize:      cfg.DispatcherBatchSize,
		PollInterval:   cfg.DispatcherPollInterval,
		AdapterTimeout: cfg.AdapterTimeout,
		StaleAfter:     cfg.StaleSendingAfter,
		RateLimitDefer: cfg.RateLimitDefer,
		BreakerDefer:   cfg.BreakerOpenWait,
	})
}
