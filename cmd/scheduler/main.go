// The scheduler runs a matching pass for every configured tenant on a
// fixed interval. Passes for different tenants are independent; a
// failing tenant never stops the loop.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/taxi-dispatch/internal/assign"
	"github.com/example/taxi-dispatch/internal/config"
	"github.com/example/taxi-dispatch/internal/ingest"
	"github.com/example/taxi-dispatch/internal/logging"
	"github.com/example/taxi-dispatch/internal/matcher"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/notify"
	"github.com/example/taxi-dispatch/internal/storage"
)

type schedulerStore interface {
	matcher.Snapshot
	CompareAndAssign(ctx context.Context, jobID, driverID string) error
	TenantConfig(ctx context.Context, tenantID string) (models.TenantConfig, error)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (overrides METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.LoadSchedulerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	logger := logging.NewLogger("dispatch-scheduler", cfg.LogLevel)

	var store schedulerStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN, logger)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store (passes will be empty)")
		store = storage.NewMemoryStore()
	}

	var queues storage.QueueStore
	if cfg.RedisAddr != "" {
		rq := storage.NewRedisQueueStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisQueuePrefix)
		defer rq.Close()
		queues = rq
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory zone queues (longest-waiting falls back to closest)")
		queues = storage.NewMemoryStore()
	}

	var events assign.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		ep := ingest.NewEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer ep.Close()
		events = ep
	}

	var notifier notify.Notifier = &notify.LogNotifier{Logger: logger}
	if cfg.PushEndpoint != "" {
		notifier = notify.NewPushNotifier(cfg.PushEndpoint, nil)
	}

	tx := &assign.Tx{Store: store, Configs: store, Notifier: notifier, Events: events, Logger: logger}
	svc := &matcher.Service{
		Store:     store,
		Queues:    queues,
		Assigner:  tx,
		Logger:    logger,
		Lookback:  cfg.Lookback,
		Lookahead: cfg.Lookahead,
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("scheduler started",
		"interval", cfg.PassInterval.String(),
		"tenants", len(cfg.Tenants))

	ticker := time.NewTicker(cfg.PassInterval)
	defer ticker.Stop()

	runAll(ctx, svc, cfg.Tenants, logger)
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
			logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			runAll(ctx, svc, cfg.Tenants, logger)
		}
	}
}

func runAll(ctx context.Context, svc *matcher.Service, tenants []string, logger *slog.Logger) {
	for _, tenantID := range tenants {
		report, err := svc.RunPass(ctx, tenantID)
		if err != nil {
			logger.Error("matching pass failed", "tenant_id", tenantID, "error", err)
			continue
		}
		if report.TotalPending > 0 {
			logger.Info("matching pass report",
				"tenant_id", tenantID,
				"total_pending", report.TotalPending,
				"assigned", report.Assigned,
				"failed", report.Failed)
		}
	}
}
