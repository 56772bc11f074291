// Package matcher assigns pending jobs to free drivers, one tenant pass
// at a time.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/taxi-dispatch/internal/geo"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/observability"
	"github.com/example/taxi-dispatch/internal/storage"
	"github.com/example/taxi-dispatch/internal/zones"
)

const (
	// Jobs older than the lookback or further out than the lookahead
	// are left for a later pass.
	defaultLookback  = 2 * time.Hour
	defaultLookahead = 24 * time.Hour

	// unknownDistance sorts drivers with no known location last.
	unknownDistance = 1e9
)

// Snapshot is the read side of the store the pass works from. All reads
// happen up front; staleness is resolved by the conditional assign at
// commit time.
type Snapshot interface {
	TenantConfig(ctx context.Context, tenantID string) (models.TenantConfig, error)
	Zones(ctx context.Context, tenantID string) ([]models.Zone, error)
	PendingJobs(ctx context.Context, tenantID string, from, to time.Time) ([]models.Job, error)
	FreeDrivers(ctx context.Context, tenantID string) ([]models.Driver, error)
}

// QueueSource supplies zone waiting queues for LONGEST_WAITING.
type QueueSource interface {
	ZoneQueue(ctx context.Context, zoneID string) ([]models.ZoneQueueMembership, error)
}

// Assigner commits a single job/driver pairing.
type Assigner interface {
	Assign(ctx context.Context, job models.Job, driver models.Driver) error
}

// JobOutcome records what happened to one job during a pass.
type JobOutcome struct {
	JobID    string `json:"job_id"`
	DriverID string `json:"driver_id,omitempty"`
	Assigned bool   `json:"assigned"`
	Reason   string `json:"reason,omitempty"`
}

// Report aggregates a full pass.
type Report struct {
	TenantID     string       `json:"tenant_id"`
	TotalPending int          `json:"total_pending"`
	Assigned     int          `json:"assigned"`
	Failed       int          `json:"failed"`
	Details      []JobOutcome `json:"details,omitempty"`
}

type Service struct {
	Store    Snapshot
	Queues   QueueSource
	Assigner Assigner
	Logger   *slog.Logger

	// Zero values fall back to the 2h/24h window.
	Lookback  time.Duration
	Lookahead time.Duration

	// Now is a test seam; nil means time.Now.
	Now func() time.Time
}

// RunPass matches every eligible pending job for the tenant against the
// free-driver snapshot. Individual jobs fail softly (no candidate, race
// lost at commit) and stay PENDING for the next pass; only store errors
// abort the pass.
func (s *Service) RunPass(ctx context.Context, tenantID string) (Report, error) {
	start := time.Now()
	defer func() {
		observability.PassesTotal.Inc()
		observability.PassDuration.Observe(time.Since(start).Seconds())
	}()

	report := Report{TenantID: tenantID}
	log := s.logger().With("tenant_id", tenantID)

	cfg, err := s.Store.TenantConfig(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		// No config means dispatch was never enabled: zero-effect pass.
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("matcher: load tenant config: %w", err)
	}
	if !cfg.AutoDispatch {
		return report, nil
	}

	zs, err := s.Store.Zones(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("matcher: load zones: %w", err)
	}

	now := s.now()
	jobs, err := s.Store.PendingJobs(ctx, tenantID, now.Add(-s.lookback()), now.Add(s.lookahead()))
	if err != nil {
		return report, fmt.Errorf("matcher: load pending jobs: %w", err)
	}
	drivers, err := s.Store.FreeDrivers(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("matcher: load free drivers: %w", err)
	}

	report.TotalPending = len(jobs)
	excluded := make(map[string]bool, len(jobs))

	for _, job := range jobs {
		driver, err := s.selectDriver(ctx, cfg, job, zs, drivers, excluded)
		if err != nil {
			return report, err
		}
		if driver == nil {
			report.Failed++
			report.Details = append(report.Details, JobOutcome{JobID: job.ID, Reason: "no_candidate"})
			observability.AssignmentFailures.WithLabelValues("no_candidate").Inc()
			continue
		}

		switch err := s.Assigner.Assign(ctx, job, *driver); {
		case errors.Is(err, storage.ErrRaceLost):
			// Claimed concurrently between snapshot and commit; the job
			// stays eligible for the next pass.
			report.Failed++
			report.Details = append(report.Details, JobOutcome{JobID: job.ID, Reason: "race_lost"})
			observability.AssignmentFailures.WithLabelValues("race_lost").Inc()
			log.Warn("assignment race lost", "job_id", job.ID, "driver_id", driver.ID)
		case err != nil:
			return report, fmt.Errorf("matcher: assign job %s: %w", job.ID, err)
		default:
			excluded[driver.ID] = true
			report.Assigned++
			report.Details = append(report.Details, JobOutcome{JobID: job.ID, DriverID: driver.ID, Assigned: true})
			observability.AssignmentsTotal.Inc()
		}
	}

	log.Info("matching pass complete",
		"total_pending", report.TotalPending,
		"assigned", report.Assigned,
		"failed", report.Failed)
	return report, nil
}

// selectDriver narrows the free pool for one job and applies the
// tenant's strategy. The zone restriction is advisory: an empty zone
// never blocks assignment while the city-wide pool has anyone left.
func (s *Service) selectDriver(ctx context.Context, cfg models.TenantConfig, job models.Job, zs []models.Zone, drivers []models.Driver, excluded map[string]bool) (*models.Driver, error) {
	avail := make([]models.Driver, 0, len(drivers))
	for _, d := range drivers {
		if !excluded[d.ID] {
			avail = append(avail, d)
		}
	}
	if len(avail) == 0 {
		return nil, nil
	}

	zone := zones.Resolve(job.PickupCoord, zs)

	var joined map[string]time.Time
	if zone != nil && s.Queues != nil {
		q, err := s.Queues.ZoneQueue(ctx, zone.ID)
		if err != nil {
			return nil, fmt.Errorf("matcher: load queue for zone %s: %w", zone.ID, err)
		}
		joined = make(map[string]time.Time, len(q))
		for _, m := range q {
			joined[m.DriverID] = m.JoinedAt
		}
	}

	cands := avail
	if zone != nil {
		if queued := filter(avail, func(d models.Driver) bool { _, ok := joined[d.ID]; return ok }); len(queued) > 0 {
			cands = queued
		} else if residents := filter(avail, func(d models.Driver) bool {
			return d.Loc != nil && geo.PointInRing(*d.Loc, zone.Ring)
		}); len(residents) > 0 {
			cands = residents
		}
	}

	if cfg.Strategy == models.StrategyLongestWaiting && zone != nil {
		if d := oldestQueued(cands, joined); d != nil {
			return d, nil
		}
		// No queue members among the candidates: fall through to CLOSEST.
	}

	if job.PickupCoord != nil {
		return closest(cands, *job.PickupCoord), nil
	}
	// No pickup coordinate: take the first candidate. The store's stable
	// callsign ordering makes this reproducible.
	return &cands[0], nil
}

// oldestQueued returns the strict-FIFO head of the zone queue among the
// candidates, or nil when none of them is queued.
func oldestQueued(cands []models.Driver, joined map[string]time.Time) *models.Driver {
	var best *models.Driver
	var bestAt time.Time
	for i := range cands {
		at, ok := joined[cands[i].ID]
		if !ok {
			continue
		}
		if best == nil || at.Before(bestAt) {
			best = &cands[i]
			bestAt = at
		}
	}
	return best
}

func closest(cands []models.Driver, pickup models.Coord) *models.Driver {
	best := 0
	bestDist := driverDistance(cands[0], pickup)
	for i := 1; i < len(cands); i++ {
		if d := driverDistance(cands[i], pickup); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return &cands[best]
}

func driverDistance(d models.Driver, pickup models.Coord) float64 {
	if d.Loc == nil {
		return unknownDistance
	}
	return geo.MilesBetween(*d.Loc, pickup)
}

func filter(ds []models.Driver, keep func(models.Driver) bool) []models.Driver {
	var out []models.Driver
	for _, d := range ds {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Service) lookback() time.Duration {
	if s.Lookback > 0 {
		return s.Lookback
	}
	return defaultLookback
}

func (s *Service) lookahead() time.Duration {
	if s.Lookahead > 0 {
		return s.Lookahead
	}
	return defaultLookahead
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
