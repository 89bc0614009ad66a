// Command scorekeeper starts the score ledger HTTP API with its ops gRPC endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/and161185/scorekeeper/internal/catalog"
	"github.com/and161185/scorekeeper/internal/config"
	"github.com/and161185/scorekeeper/internal/job"
	"github.com/and161185/scorekeeper/internal/level"
	"github.com/and161185/scorekeeper/internal/metrics"
	"github.com/and161185/scorekeeper/internal/migrate"
	"github.com/and161185/scorekeeper/internal/model"
	"github.com/and161185/scorekeeper/internal/notify"
	"github.com/and161185/scorekeeper/internal/repository"
	"github.com/and161185/scorekeeper/internal/repository/memory"
	"github.com/and161185/scorekeeper/internal/repository/postgres"
	grpcserver "github.com/and161185/scorekeeper/internal/server/grpc"
	httpserver "github.com/and161185/scorekeeper/internal/server/http"
	"github.com/and161185/scorekeeper/internal/service"
	"github.com/and161185/scorekeeper/internal/tracing"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, opens storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.Store),
		zap.String("challengeMode", cfg.ChallengeMode),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "scorekeeper", version, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Fatal("catalog", zap.Error(err))
	}
	rule, err := level.NewRule(cfg.LevelUnit)
	if err != nil {
		logger.Fatal("level rule", zap.Error(err))
	}

	// Storage
	var (
		repo  repository.ScoreRepository
		ready func(context.Context) error
	)
	switch cfg.Store {
	case config.StorePostgres:
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("postgres", zap.Error(err))
		}
		defer db.Close()
		repo, ready = postgres.NewScoreRepo(db), db.Ping
	default:
		repo = memory.NewScoreRepo()
	}

	// Events
	hub := notify.NewHub(logger, 64)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, func() float64 { return float64(hub.Len()) })

	var notifier notify.Notifier = hub
	if cfg.RedisAddr != "" {
		rds, err := notify.NewRedis(ctx, logger, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer func() { _ = rds.Close() }()
		if cfg.RedisForward {
			if err := rds.Forward(ctx, hub.Broadcast); err != nil {
				logger.Fatal("redis forward", zap.Error(err))
			}
			notifier = rds
		} else {
			notifier = notify.Multi{hub, rds}
		}
	}

	// Services
	ledger := service.NewLedger(repo, service.Options{
		Rule:       rule,
		Catalog:    cat,
		Mode:       model.ChallengeMode(cfg.ChallengeMode),
		SalePoints: cfg.SalePoints,
		Notifier:   notifier,
		Metrics:    m,
		Log:        logger,
	})
	reset := job.NewWeeklyReset(ledger, notifier, m, logger, job.Config{
		Interval:    cfg.ResetInterval,
		Timeout:     cfg.ResetTimeout,
		Concurrency: cfg.ResetConcurrency,
	})
	go reset.Start(ctx)

	// HTTP
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Ledger:  ledger,
			Catalog: cat,
			Rule:    rule,
			Events:  hub,
			Metrics: m,
			Ready:   ready,
			Log:     logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpSrv.RegisterOnShutdown(hub.Close)
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Ops gRPC
	var ops *grpcserver.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		ops = grpcserver.New(logger, m, cfg.Dev)
		ops.SetServing(true)
		go func() {
			if err := ops.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exit = 1
	}

	// graceful shutdown
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if ops != nil {
		ops.SetServing(false)
	}
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if ops != nil {
		ops.Stop(sctx)
	}

	logger.Info("shutdown complete")
	if exit != 0 {
		_ = logger.Sync()
		os.Exit(exit)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
