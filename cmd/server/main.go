package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/taxi-dispatch/internal/assign"
	"github.com/example/taxi-dispatch/internal/config"
	httpapi "github.com/example/taxi-dispatch/internal/http"
	"github.com/example/taxi-dispatch/internal/ingest"
	"github.com/example/taxi-dispatch/internal/logging"
	"github.com/example/taxi-dispatch/internal/matcher"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/notify"
	"github.com/example/taxi-dispatch/internal/payments"
	"github.com/example/taxi-dispatch/internal/pricing"
	"github.com/example/taxi-dispatch/internal/storage"
)

// dispatchStore is everything the engines need from one backing store.
type dispatchStore interface {
	matcher.Snapshot
	pricing.TariffSource
	storage.DriverLocations
	CompareAndAssign(ctx context.Context, jobID, driverID string) error
}

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("dispatch-api", cfg.LogLevel)

	var store dispatchStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			applyMigrations(logger, cfg.PGDSN)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN, logger)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var queues storage.QueueStore
	if cfg.RedisAddr != "" {
		rq := storage.NewRedisQueueStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisQueuePrefix)
		defer rq.Close()
		queues = rq
	} else if mem, ok := store.(*storage.MemoryStore); ok {
		queues = mem
	} else {
		logger.Warn("REDIS_ADDR not set, zone queues run in-memory")
		queues = storage.NewMemoryStore()
	}

	wsreg := notify.NewWSRegistry()
	var notifier notify.Notifier = notify.NewPushNotifier(cfg.PushEndpoint, wsreg)
	if cfg.PushEndpoint == "" {
		// WS-first with a log fallback keeps local runs observable.
		notifier = &fallbackNotifier{ws: wsreg, log: &notify.LogNotifier{Logger: logger}}
	}

	var events assign.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		ep := ingest.NewEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer ep.Close()
		events = ep
	}

	tx := &assign.Tx{Store: store, Configs: store, Notifier: notifier, Events: events, Logger: logger}
	m := &matcher.Service{Store: store, Queues: queues, Assigner: tx, Logger: logger}
	p := &pricing.Engine{Tariffs: store, Logger: logger}

	var holder httpapi.FareHolder
	if cfg.StripeAPIKey != "" {
		holder = payments.NewStripeClient(cfg.StripeAPIKey)
	} else {
		logger.Warn("STRIPE_API_KEY not set, fare holds disabled")
	}

	srv := httpapi.NewServer(logger, p, m, store, queues, wsreg, holder)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("dispatch api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("dispatch api stopped")
}

// fallbackNotifier tries the driver websocket and logs the notice when
// no session is connected.
type fallbackNotifier struct {
	ws  *notify.WSRegistry
	log *notify.LogNotifier
}

func (f *fallbackNotifier) DriverAssigned(ctx context.Context, job models.Job, driver models.Driver, cfg models.TenantConfig) error {
	if err := f.ws.DriverAssigned(ctx, job, driver, cfg); err == nil {
		return nil
	}
	return f.log.DriverAssigned(ctx, job, driver, cfg)
}

func applyMigrations(logger *slog.Logger, dsn string) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open failed", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_dispatch.sql"))
	if err != nil {
		logger.Error("migration read failed", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_dispatch.sql")
}
