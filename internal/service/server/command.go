package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"

	api "github.com/oshokin/persistent-last-changed/internal/api/grpc/sensor"
	"github.com/oshokin/persistent-last-changed/internal/config"
	"github.com/oshokin/persistent-last-changed/internal/feed/natsfeed"
	"github.com/oshokin/persistent-last-changed/internal/logger"
	"github.com/oshokin/persistent-last-changed/internal/metrics"
	"github.com/oshokin/persistent-last-changed/internal/repository/slot"
	"github.com/oshokin/persistent-last-changed/internal/timer"
)

// Options controls the serve process.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the gRPC listen address from the config.
	ListenAddress string
	// MetricsAddress overrides the metrics listen address from the config.
	MetricsAddress string
	// Watch reloads the sensors when the config file changes.
	Watch bool
}

// shutdownTimeout bounds the graceful shutdown of the HTTP metrics server.
const shutdownTimeout = 5 * time.Second

// Run starts every configured sensor and blocks until ctx is canceled.
// Loads configuration first, then wires the feed, storage and timer.
//
//nolint:cyclop,funlen // Startup wiring is sequential by nature.
func Run(ctx context.Context, opts *Options) error {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logOK := logger.Configure(settings.LogLevel, settings.LogFormat)

	// Set context with logger name for tracking, after the logger is configured.
	ctx = logger.WithName(ctx, "last-changed")

	if !logOK {
		logger.WarnKV(ctx, "Unknown log settings, using defaults",
			"log_level", settings.LogLevel,
			"log_format", settings.LogFormat)
	}

	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if opts.MetricsAddress != "" {
		settings.MetricsAddress = opts.MetricsAddress
	}

	loc, err := settings.Location()
	if err != nil {
		return err
	}

	conn, err := natsfeed.Connect(ctx, settings.NATS.URL, settings.NATS.Timeout)
	if err != nil {
		return err
	}

	defer func() {
		if err := conn.Drain(); err != nil {
			logger.ErrorKV(ctx, "Failed to drain NATS connection", "error", err)
		}
	}()

	repo, closeRepo, err := openRepository(ctx, &settings.Storage, conn, settings.NATS.Timeout)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	defer func() {
		if err := closeRepo(); err != nil {
			logger.ErrorKV(ctx, "Failed to close storage", "error", err)
		}
	}()

	scheduler, err := timer.NewScheduler(ctx, loc)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()

	svc := newService(dependencies{
		feed:    natsfeed.New(conn, settings.NATS.SubjectPrefix),
		timer:   scheduler,
		repo:    repo,
		metrics: metrics.NewRecorder(registry),
	})

	if err = svc.apply(ctx, settings); err != nil {
		svc.stop(ctx)
		_ = scheduler.Shutdown()

		return fmt.Errorf("start sensors: %w", err)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})

	if opts.Watch {
		go func() {
			defer close(watchDone)

			watchConfig(watchCtx, opts.ConfigPath, svc)
		}()
	} else {
		close(watchDone)
	}

	// Sensors must stop before the scheduler and the connection go away,
	// and no reload may restart them afterwards.
	defer func() {
		cancelWatch()
		<-watchDone

		svc.stop(ctx)

		if err := scheduler.Shutdown(); err != nil {
			logger.ErrorKV(ctx, "Failed to stop scheduler", "error", err)
		}
	}()

	if settings.MetricsAddress != "" {
		stopMetrics, err := serveMetrics(ctx, settings.MetricsAddress, metrics.Handler(registry))
		if err != nil {
			return err
		}

		defer stopMetrics()
	}

	logger.InfoKV(ctx, "Last-changed sensors running",
		"sensors", len(settings.Sensors),
		"storage", settings.Storage.Driver,
		"nats_url", settings.NATS.URL,
		"listen_address", settings.ListenAddress,
		"metrics_address", settings.MetricsAddress)

	if settings.ListenAddress == "" {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down")

		return nil
	}

	return serveGRPC(ctx, settings.ListenAddress, svc)
}

// openRepository builds the slot backend chosen by the storage driver.
func openRepository(
	ctx context.Context,
	storage *config.StorageConfig,
	conn *nats.Conn,
	timeout time.Duration,
) (slot.Repository, func() error, error) {
	noop := func() error { return nil }

	switch storage.Driver {
	case config.DriverSQLite:
		repo, err := slot.NewSQLiteRepository(ctx, storage.Path)
		if err != nil {
			return nil, nil, err
		}

		return repo, repo.Close, nil
	case config.DriverNATSKV:
		repo, err := slot.NewKVRepository(ctx, conn, storage.Bucket, timeout)
		if err != nil {
			return nil, nil, err
		}

		return repo, noop, nil
	default:
		return slot.NewFileRepository(storage.Path), noop, nil
	}
}

// watchConfig reapplies the sensors whenever the config file changes.
// Only sensors, time zone and log settings are reloaded; connection and
// storage settings need a restart.
func watchConfig(ctx context.Context, path string, svc *service) {
	ctx = logger.WithName(ctx, "config-watch")

	err := config.Watch(ctx, path, func(cfg *config.Config) {
		logger.InfoKV(ctx, "Configuration changed, reloading sensors", "sensors", len(cfg.Sensors))

		logger.Configure(cfg.LogLevel, cfg.LogFormat)

		if err := svc.apply(ctx, cfg); err != nil {
			logger.ErrorKV(ctx, "Reload finished with errors", "error", err)
		}
	})
	if err != nil {
		logger.ErrorKV(ctx, "Config watch stopped", "error", err)
	}
}

// serveMetrics exposes the registry on /metrics and returns a stop function.
func serveMetrics(ctx context.Context, address string, handler http.Handler) (func(), error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: config.DefaultTimeout,
	}

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorKV(ctx, "Metrics server failed", "error", err)
		}
	}()

	logger.InfoKV(ctx, "Metrics server listening", "metrics_address", lis.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorKV(ctx, "Failed to stop metrics server", "error", err)
		}
	}, nil
}

// serveGRPC runs the read API until ctx is canceled.
func serveGRPC(ctx context.Context, address string, svc api.Service) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterSensorServiceServer(grpcServer, api.NewServer(svc))

	logger.InfoKV(ctx, "Sensor API listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}
