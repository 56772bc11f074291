package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrRaceLost is returned by CompareAndAssign when the job or the
	// driver was claimed concurrently between snapshot and commit.
	// Callers treat it as a soft failure; the job stays eligible for a
	// later pass.
	ErrRaceLost = errors.New("storage: assignment race lost")
)

// Store defines the read and conditional-write operations the engines need.
// Implementations must return zones and fixed prices ordered by creation
// time (ties broken by ID) so first-match tie-breaks are deterministic,
// and free drivers ordered by callsign.
type Store interface {
	TenantConfig(ctx context.Context, tenantID string) (models.TenantConfig, error)
	Zones(ctx context.Context, tenantID string) ([]models.Zone, error)

	// PendingJobs returns PENDING, auto-match-eligible, unassigned jobs
	// with pickup time in [from, to], ordered by pickup time ascending.
	PendingJobs(ctx context.Context, tenantID string, from, to time.Time) ([]models.Job, error)

	FreeDrivers(ctx context.Context, tenantID string) ([]models.Driver, error)

	// PricingRule returns the active rule for the class, or (nil, nil)
	// when the tenant has none configured.
	PricingRule(ctx context.Context, tenantID string, class models.VehicleClass) (*models.PricingRule, error)

	FixedPrices(ctx context.Context, tenantID string) ([]models.FixedPrice, error)

	// CompareAndAssign atomically moves the job to DISPATCHED with the
	// given driver and the driver to BUSY, but only while the job is
	// still PENDING and unassigned and the driver still FREE. Returns
	// ErrRaceLost if either precondition no longer holds.
	CompareAndAssign(ctx context.Context, jobID, driverID string) error
}

// QueueStore manages zone waiting queues for the LONGEST_WAITING strategy.
type QueueStore interface {
	// ZoneQueue returns memberships ordered by joinedAt ascending.
	ZoneQueue(ctx context.Context, zoneID string) ([]models.ZoneQueueMembership, error)

	// JoinQueue is idempotent: re-joining keeps the original timestamp.
	JoinQueue(ctx context.Context, zoneID, driverID string, at time.Time) error

	LeaveQueue(ctx context.Context, zoneID, driverID string) error
}

// DriverLocations accepts driver position updates feeding the snapshot.
type DriverLocations interface {
	UpsertDriverLocation(ctx context.Context, tenantID, driverID string, loc models.Coord) error
}
