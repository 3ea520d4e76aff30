// Command brokerd runs the order broker: the control API, the submission journal and the
// background fill reconciler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	dbmigrations "github.com/coachpo/orderbroker/db/migrations"
	appbroker "github.com/coachpo/orderbroker/internal/app/broker"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
	"github.com/coachpo/orderbroker/internal/infra/archive"
	"github.com/coachpo/orderbroker/internal/infra/config"
	"github.com/coachpo/orderbroker/internal/infra/credentials"
	"github.com/coachpo/orderbroker/internal/infra/persistence/memory"
	"github.com/coachpo/orderbroker/internal/infra/persistence/migrations"
	"github.com/coachpo/orderbroker/internal/infra/persistence/postgres"
	httpserver "github.com/coachpo/orderbroker/internal/infra/server/http"
	"github.com/coachpo/orderbroker/internal/infra/telemetry"
	"github.com/coachpo/orderbroker/internal/infra/transport"
)

const (
	defaultConfigPath            = "config/app.yaml"
	poolMetricsName              = "orderbroker"
	shutdownTimeout              = 30 * time.Second
	controlServerShutdownTimeout = 5 * time.Second
	lifecycleShutdownTimeout     = 10 * time.Second
	telemetryShutdownTimeout     = 5 * time.Second
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	appCfg, err := config.Load(ctx, resolveConfigPath(cfgPathFlag))
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	configureLogger(logger, appCfg.Logging)
	logger.WithFields(logrus.Fields{
		"env":   appCfg.Environment,
		"venue": appCfg.Venue.Name,
		"host":  appCfg.Venue.Host,
	}).Info("configuration initialised")

	telemetryProvider, err := initTelemetry(ctx, logger, appCfg)
	if err != nil {
		logger.WithError(err).Fatal("initialise telemetry")
	}

	service, store, err := buildService(ctx, logger, appCfg)
	if err != nil {
		logger.WithError(err).Fatal("initialise broker")
	}

	var lifecycle conc.WaitGroup

	if appCfg.Reconcile.Enabled {
		reconciler, err := buildReconciler(logger, appCfg, service)
		if err != nil {
			logger.WithError(err).Fatal("initialise reconciler")
		}
		lifecycle.Go(func() {
			if err := reconciler.Run(ctx); err != nil {
				logger.WithError(err).Error("reconciler stopped")
			}
		})
	} else {
		logger.Info("fill reconciliation disabled")
	}

	app := httpserver.New(service, httpserver.Options{
		Environment: string(appCfg.Environment),
		Logger:      logger,
		Ready:       store.ready,
	})
	startAPIServer(&lifecycle, logger, app, appCfg.APIServer.Addr)
	logger.WithField("addr", appCfg.APIServer.Addr).Info("control API listening")

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     app,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		closeStore: store.close,
		telemetry:  telemetryProvider,
	})
	logger.WithField("elapsed", time.Since(shutdownStart).String()).Info("shutdown completed")
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}

func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	logger.SetLevel(cfg.ParsedLevel())
	if cfg.Format == config.LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func initTelemetry(ctx context.Context, logger logrus.FieldLogger, appCfg config.AppConfig) (*telemetry.Provider, error) {
	cfg := appCfg.Telemetry
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.Environment = string(appCfg.Environment)
	telemetryCfg.OTLPInsecure = cfg.OTLPInsecure
	telemetryCfg.Enabled = cfg.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		logger.WithFields(logrus.Fields{
			"endpoint": telemetryCfg.OTLPEndpoint,
			"service":  telemetryCfg.ServiceName,
		}).Info("telemetry initialised")
	} else {
		logger.Info("telemetry disabled")
	}
	return provider, nil
}

// storeHandle is the journal and fill store plus its lifecycle hooks.
type storeHandle struct {
	store orderstore.Store
	ready func(context.Context) error
	close func()
}

// buildService wires credentials, transport, venue adapter and store.
func buildService(ctx context.Context, logger *logrus.Logger, appCfg config.AppConfig) (*appbroker.Service, storeHandle, error) {
	creds, err := credentials.NewEnvSource(appCfg.Venue.EnvFiles...).Credentials(ctx, appCfg.Venue.Account)
	if err != nil {
		return nil, storeHandle{}, fmt.Errorf("resolve credentials for %s: %w", appCfg.Venue.Account, err)
	}

	if appCfg.Transport.Timeout == 0 {
		logger.Warn("transport timeout is zero; venue requests are unbounded")
	}
	httpTransport := transport.NewHTTP(transport.HTTPOptions{
		Timeout:             appCfg.Transport.Timeout,
		RateLimit:           appCfg.Transport.RateLimit,
		Burst:               appCfg.Transport.Burst,
		MaxIdleConnsPerHost: appCfg.Transport.MaxIdleConnsPerHost,
	})

	venue, err := appbroker.New(appbroker.Settings{
		Venue:       appCfg.Venue.Name,
		Host:        appCfg.Venue.Host,
		OrderPath:   appCfg.Venue.OrderPath,
		Scheme:      appCfg.Venue.Scheme,
		Concurrency: appCfg.Reconcile.Concurrency,
		Credentials: creds,
		Transport:   httpTransport,
		Logger:      logger,
	})
	if err != nil {
		return nil, storeHandle{}, err
	}

	handle, err := openStore(ctx, logger, appCfg.Database)
	if err != nil {
		return nil, storeHandle{}, err
	}
	service, err := appbroker.NewService(venue, appbroker.ServiceOptions{Store: handle.store, Logger: logger})
	if err != nil {
		handle.close()
		return nil, storeHandle{}, err
	}
	return service, handle, nil
}

func openStore(ctx context.Context, logger logrus.FieldLogger, cfg config.DatabaseConfig) (storeHandle, error) {
	if !cfg.Enabled() {
		logger.Warn("no database configured; journal and fill records are kept in memory")
		return storeHandle{store: memory.New(), close: func() {}}, nil
	}
	if cfg.RunMigrations {
		if err := migrations.ApplyFS(ctx, cfg.DSN, dbmigrations.Files, logger); err != nil {
			return storeHandle{}, fmt.Errorf("apply migrations: %w", err)
		}
	}
	pool, err := postgres.Connect(ctx, cfg.DSN, postgres.PoolOptions{
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnLifetime:   cfg.MaxConnLifetime,
		MaxConnIdleTime:   cfg.MaxConnIdleTime,
		HealthCheckPeriod: cfg.HealthCheckPeriod,
	})
	if err != nil {
		return storeHandle{}, err
	}
	postgres.ObservePoolMetrics(pool, poolMetricsName)
	store := postgres.New(pool)
	logger.Info("postgres store connected")
	return storeHandle{store: store.Orders, ready: store.Ping, close: store.Close}, nil
}

func archiveS3Config(cfg config.ArchiveConfig) archive.S3Config {
	return archive.S3Config{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	}
}

func buildReconciler(logger logrus.FieldLogger, appCfg config.AppConfig, service *appbroker.Service) (*appbroker.Reconciler, error) {
	opts := appbroker.ReconcilerOptions{
		Interval:   appCfg.Reconcile.Interval,
		MaxElapsed: appCfg.Reconcile.MaxElapsed,
		BatchLimit: appCfg.Reconcile.BatchLimit,
		Logger:     logger,
	}
	if appCfg.Archive.Enabled {
		client, err := archive.NewS3Client(archiveS3Config(appCfg.Archive))
		if err != nil {
			return nil, err
		}
		archiver, err := archive.NewS3Archiver(client, appCfg.Archive.Bucket, appCfg.Archive.Prefix)
		if err != nil {
			return nil, err
		}
		opts.Archiver = archiver
		logger.WithField("bucket", appCfg.Archive.Bucket).Info("reconcile snapshots archived to s3")
	}
	return appbroker.NewReconciler(service, opts)
}

func startAPIServer(lifecycle *conc.WaitGroup, logger logrus.FieldLogger, app *fiber.App, addr string) {
	lifecycle.Go(func() {
		if err := app.Listen(addr); err != nil {
			logger.WithError(err).Error("control server")
		}
	})
}

type gracefulShutdownConfig struct {
	server     *fiber.App
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	closeStore func()
	telemetry  *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger logrus.FieldLogger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		stepLogger := logger.WithField("step", name)
		stepLogger.Info("shutdown step started")
		if err := fn(stepCtx); err != nil {
			stepLogger.WithError(err).Warn("shutdown step failed")
		} else {
			stepLogger.Info("shutdown step completed")
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping control server", controlServerShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.ShutdownWithContext(stepCtx)
		})
	}

	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.closeStore != nil {
		shutdownStep("closing store", lifecycleShutdownTimeout, func(context.Context) error {
			cfg.closeStore()
			return nil
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}
