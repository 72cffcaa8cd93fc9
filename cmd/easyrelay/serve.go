package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/djlord-it/easy-relay/internal/analytics"
	"github.com/djlord-it/easy-relay/internal/api"
	"github.com/djlord-it/easy-relay/internal/circuitbreaker"
	"github.com/djlord-it/easy-relay/internal/config"
	"github.com/djlord-it/easy-relay/internal/dispatcher"
	natsintake "github.com/djlord-it/easy-relay/internal/intake/nats"
	"github.com/djlord-it/easy-relay/internal/janitor"
	"github.com/djlord-it/easy-relay/internal/ledger"
	"github.com/djlord-it/easy-relay/internal/logging"
	"github.com/djlord-it/easy-relay/internal/metrics"
	"github.com/djlord-it/easy-relay/internal/reconciler"
	"github.com/djlord-it/easy-relay/internal/transport/channel"
	"github.com/djlord-it/easy-relay/internal/worker"
)

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}
	defer func() { _ = logger.Sync() }()

	if err := serve(cfg, logger); err != nil {
		logger.Error("easyrelay exited with error", zap.Error(err))
		return exitRuntimeError
	}
	return exitSuccess
}

func serve(cfg config.Config, logger *zap.Logger) (err error) {
	logConfigWarnings(cfg, logger)

	topology, err := cfg.Topology()
	if err != nil {
		return err
	}
	categories, dests, err := topology.Resolve()
	if err != nil {
		return err
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancelStartup()

	// Metrics sink (optional)
	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, logger)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		logger.Info("metrics enabled", zap.String("port", cfg.MetricsPort), zap.String("path", cfg.MetricsPath))
	} else {
		logger.Info("METRICS_ENABLED not set; metrics disabled")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { err = multierr.Append(err, rdb.Close()) }()
	}

	backend, err := openLedger(startupCtx, cfg, rdb, logger)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer func() { err = multierr.Append(err, backend.Close()) }()
	logger.Info("ledger ready", zap.String("backend", cfg.LedgerBackend))

	clients, err := connectBrokers(startupCtx, cfg, dests)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, clients.Close()) }()

	breakers := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown).
		WithStateListener(func(name, from, to string) {
			sink.BreakerStateChange(name, to)
			logger.Warn("circuit breaker state changed",
				zap.String("destination", name),
				zap.String("from", from),
				zap.String("to", to),
			)
		})

	routes, err := buildRoutes(dests, clients.deps(breakers))
	if err != nil {
		return err
	}
	disp, err := dispatcher.New(categories, routes)
	if err != nil {
		return err
	}
	disp = disp.WithMetrics(sink).WithLogger(logger)

	recorder := ledger.NewRecorder(backend.store).
		WithTimeout(cfg.LedgerTimeout).
		WithMetrics(sink).
		WithLogger(logger)

	w := worker.New(channel.NewQueue(), disp, recorder, cfg.RelayEndpoint).
		WithRouting(cfg.Routing()).
		WithPolicy(cfg.RetryPolicy()).
		WithMetrics(sink).
		WithLogger(logger)

	if clients.nats != nil {
		w = w.WithDeadLetter(natsintake.NewDeadLetterPublisher(clients.nats.JetStream(), cfg.NATSDLQSubject))
	} else {
		w = w.WithDeadLetter(logDeadLetter{logger: logger.Named("deadletter")})
	}

	if cfg.AnalyticsEnabled {
		w = w.WithAnalytics(analytics.NewRedisSink(rdb, cfg.Analytics()).WithLogger(logger))
		logger.Info("analytics enabled", zap.String("redis", cfg.RedisAddr), zap.Duration("window", cfg.AnalyticsWindow))
	}

	apiHandler := api.NewHandler(w).WithReader(backend.reader).WithLogger(logger)
	if backend.db != nil {
		apiHandler = apiHandler.WithHealthChecker(backend.db)
	}
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// Background loops get their own context so shutdown can stop them before draining the worker.
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	g, gctx := errgroup.WithContext(sigCtx)

	// The worker is stopped through Stop so queued work drains; its context is never cancelled.
	if err := w.Start(context.Background()); err != nil {
		return err
	}

	var intake *natsintake.Intake
	if clients.nats != nil {
		intake = natsintake.NewIntake(clients.nats.Conn(), cfg.NATSSubject, w).WithLogger(logger)
		if err := intake.Start(); err != nil {
			return multierr.Append(err, w.Stop(context.Background()))
		}
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if cfg.ReconcileEnabled {
		recon := reconciler.New(
			reconciler.Config{
				Interval:    cfg.ReconcileInterval,
				Threshold:   cfg.ReconcileThreshold,
				BatchSize:   cfg.ReconcileBatchSize,
				MaxAttempts: cfg.MaxAttempts,
			},
			backend.unsettled,
			w,
		).WithMetrics(sink).WithLogger(logger)
		g.Go(func() error {
			recon.Run(bgCtx)
			return nil
		})
		logger.Info("reconciler enabled",
			zap.Duration("interval", cfg.ReconcileInterval),
			zap.Duration("threshold", cfg.ReconcileThreshold),
			zap.Int("batch", cfg.ReconcileBatchSize),
		)
	} else {
		logger.Info("RECONCILE_ENABLED not set; reconciler disabled")
	}

	if cfg.CleanupSchedule != "" {
		schedule, err := janitor.ParseSchedule(cfg.CleanupSchedule)
		if err != nil {
			return err
		}
		jan := janitor.New(janitor.Config{Retention: cfg.LedgerRetention}, backend.pruner, schedule).
			WithMetrics(sink).
			WithLogger(logger)
		g.Go(func() error {
			jan.Run(bgCtx)
			return nil
		})
		logger.Info("ledger janitor enabled", zap.String("schedule", cfg.CleanupSchedule), zap.Duration("retention", cfg.LedgerRetention))
	}

	logger.Info("easyrelay started",
		zap.String("http", cfg.HTTPAddr),
		zap.Int("destinations", len(routes)),
		zap.Stringer("retry", cfg.RetryPolicy()),
	)

	<-gctx.Done()
	if sigCtx.Err() != nil {
		logger.Info("received signal, shutting down")
	} else {
		logger.Warn("server failed, shutting down")
	}

	var shutdownErr error

	// Phase 1: stop producers (no new submissions from NATS or the reconciler)
	if intake != nil {
		logger.Info("stopping nats intake...")
		shutdownErr = multierr.Append(shutdownErr, intake.Stop())
	}
	logger.Info("stopping background loops...")
	cancelBackground()

	// Phase 2: drain the worker; leftovers are dead-lettered on timeout
	logger.Info("stopping worker (draining queue)...")
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancelDrain()
	shutdownErr = multierr.Append(shutdownErr, w.Stop(drainCtx))
	logger.Info("worker stopped")

	// Phase 3: stop HTTP servers with graceful shutdown
	httpShutdownCtx, cancelHTTP := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancelHTTP()
	logger.Info("stopping http server...")
	shutdownErr = multierr.Append(shutdownErr, httpServer.Shutdown(httpShutdownCtx))
	if metricsServer != nil {
		logger.Info("stopping metrics server...")
		shutdownErr = multierr.Append(shutdownErr, metricsServer.Shutdown(httpShutdownCtx))
	}

	shutdownErr = multierr.Append(shutdownErr, g.Wait())

	logger.Info("easyrelay stopped")
	return shutdownErr
}
