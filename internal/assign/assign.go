// Package assign commits job/driver pairings and fires the follow-up
// side effects.
package assign

import (
	"context"
	"log/slog"

	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/notify"
)

// ConditionalStore is the single write the transaction needs.
type ConditionalStore interface {
	CompareAndAssign(ctx context.Context, jobID, driverID string) error
}

// ConfigSource supplies the tenant settings notifications carry.
type ConfigSource interface {
	TenantConfig(ctx context.Context, tenantID string) (models.TenantConfig, error)
}

// EventPublisher mirrors assignments onto the event bus.
type EventPublisher interface {
	PublishAssigned(ctx context.Context, job models.Job, driver models.Driver) error
}

// Tx performs the assignment transaction: one conditional state flip
// (job to DISPATCHED, driver to BUSY), then best-effort notification and
// event publication. The side effects never roll back the flip.
type Tx struct {
	Store    ConditionalStore
	Configs  ConfigSource
	Notifier notify.Notifier
	Events   EventPublisher
	Logger   *slog.Logger
}

func (t *Tx) Assign(ctx context.Context, job models.Job, driver models.Driver) error {
	if err := t.Store.CompareAndAssign(ctx, job.ID, driver.ID); err != nil {
		return err
	}

	job.Status = models.JobDispatched
	job.DriverID = &driver.ID
	driver.Status = models.DriverBusy

	log := t.logger().With("job_id", job.ID, "driver_id", driver.ID)

	if t.Notifier != nil {
		var cfg models.TenantConfig
		if t.Configs != nil {
			if c, err := t.Configs.TenantConfig(ctx, job.TenantID); err == nil {
				cfg = c
			}
		}
		if err := t.Notifier.DriverAssigned(ctx, job, driver, cfg); err != nil {
			log.Warn("assignment notification failed", "error", err)
		}
	}

	if t.Events != nil {
		if err := t.Events.PublishAssigned(ctx, job, driver); err != nil {
			log.Warn("assignment event publish failed", "error", err)
		}
	}

	log.Info("job dispatched")
	return nil
}

func (t *Tx) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
