// Package notify delivers assignment notices to drivers and customers.
// Every delivery is best-effort; callers log and swallow failures.
package notify

import (
	"context"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

// Notice is the payload pushed to a driver when a job lands on them.
type Notice struct {
	JobID          string  `json:"job_id"`
	TenantID       string  `json:"tenant_id"`
	DriverCallsign string  `json:"driver_callsign"`
	PickupAddress  string  `json:"pickup_address"`
	DropoffAddress string  `json:"dropoff_address"`
	PickupTime     string  `json:"pickup_time"`
	Fare           float64 `json:"fare,omitempty"`
	Currency       string  `json:"currency,omitempty"`
}

// Notifier is the abstract send operation (email/SMS/push agnostic).
type Notifier interface {
	DriverAssigned(ctx context.Context, job models.Job, driver models.Driver, cfg models.TenantConfig) error
}

func noticeFor(job models.Job, driver models.Driver, cfg models.TenantConfig) Notice {
	return Notice{
		JobID:          job.ID,
		TenantID:       job.TenantID,
		DriverCallsign: driver.Callsign,
		PickupAddress:  job.PickupAddress,
		DropoffAddress: job.DropoffAddress,
		PickupTime:     job.PickupTime.Format(time.RFC3339),
		Fare:           job.Fare,
		Currency:       cfg.Currency,
	}
}
