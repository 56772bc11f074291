package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store and QueueStore, used
// for local runs and tests. CompareAndAssign holds the lock across both
// state flips, which gives the same commit-time guarantee the Postgres
// store gets from a single conditional statement.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]models.TenantConfig
	zones   map[string][]models.Zone       // tenantID -> zones
	jobs    map[string]*models.Job         // jobID -> job
	drivers map[string]*models.Driver      // driverID -> driver
	rules   map[string][]models.PricingRule
	fixed   map[string][]models.FixedPrice
	queues  map[string]map[string]time.Time // zoneID -> driverID -> joinedAt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]models.TenantConfig),
		zones:   make(map[string][]models.Zone),
		jobs:    make(map[string]*models.Job),
		drivers: make(map[string]*models.Driver),
		rules:   make(map[string][]models.PricingRule),
		fixed:   make(map[string][]models.FixedPrice),
		queues:  make(map[string]map[string]time.Time),
	}
}

func (m *MemoryStore) PutTenantConfig(cfg models.TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[cfg.TenantID] = cfg
}

func (m *MemoryStore) PutZone(z models.Zone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[z.TenantID] = append(m.zones[z.TenantID], z)
	sortZones(m.zones[z.TenantID])
}

func (m *MemoryStore) PutJob(j models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := j
	m.jobs[j.ID] = &cp
}

func (m *MemoryStore) PutDriver(d models.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	m.drivers[d.ID] = &cp
}

func (m *MemoryStore) PutPricingRule(r models.PricingRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.TenantID] = append(m.rules[r.TenantID], r)
}

func (m *MemoryStore) PutFixedPrice(f models.FixedPrice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed[f.TenantID] = append(m.fixed[f.TenantID], f)
	fs := m.fixed[f.TenantID]
	sort.SliceStable(fs, func(i, j int) bool {
		if !fs[i].CreatedAt.Equal(fs[j].CreatedAt) {
			return fs[i].CreatedAt.Before(fs[j].CreatedAt)
		}
		return fs[i].ID < fs[j].ID
	})
}

func (m *MemoryStore) TenantConfig(_ context.Context, tenantID string) (models.TenantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.tenants[tenantID]
	if !ok {
		return models.TenantConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (m *MemoryStore) Zones(_ context.Context, tenantID string) ([]models.Zone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Zone, len(m.zones[tenantID]))
	copy(out, m.zones[tenantID])
	return out, nil
}

func (m *MemoryStore) PendingJobs(_ context.Context, tenantID string, from, to time.Time) ([]models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Job
	for _, j := range m.jobs {
		if j.TenantID != tenantID || j.Status != models.JobPending || !j.AutoMatch || j.DriverID != nil {
			continue
		}
		if j.PickupTime.Before(from) || j.PickupTime.After(to) {
			continue
		}
		out = append(out, *j)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].PickupTime.Before(out[k].PickupTime) })
	return out, nil
}

func (m *MemoryStore) FreeDrivers(_ context.Context, tenantID string) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Driver
	for _, d := range m.drivers {
		if d.TenantID == tenantID && d.Status == models.DriverFree {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Callsign < out[k].Callsign })
	return out, nil
}

func (m *MemoryStore) PricingRule(_ context.Context, tenantID string, class models.VehicleClass) (*models.PricingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules[tenantID] {
		if r.VehicleClass == class {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) FixedPrices(_ context.Context, tenantID string) ([]models.FixedPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.FixedPrice, len(m.fixed[tenantID]))
	copy(out, m.fixed[tenantID])
	return out, nil
}

func (m *MemoryStore) CompareAndAssign(_ context.Context, jobID, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	d, ok := m.drivers[driverID]
	if !ok {
		return ErrNotFound
	}
	if j.Status != models.JobPending || j.DriverID != nil || d.Status != models.DriverFree {
		return ErrRaceLost
	}
	j.Status = models.JobDispatched
	j.DriverID = &d.ID
	j.UpdatedAt = time.Now()
	d.Status = models.DriverBusy
	return nil
}

func (m *MemoryStore) UpsertDriverLocation(_ context.Context, tenantID, driverID string, loc models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		d = &models.Driver{ID: driverID, TenantID: tenantID, Callsign: driverID, Status: models.DriverFree}
		m.drivers[driverID] = d
	}
	cp := loc
	d.Loc = &cp
	d.Updated = time.Now()
	return nil
}

// Job returns a copy of the stored job, for handlers and tests.
func (m *MemoryStore) Job(id string) (models.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *j, true
}

// Driver returns a copy of the stored driver.
func (m *MemoryStore) Driver(id string) (models.Driver, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return models.Driver{}, false
	}
	return *d, true
}

func (m *MemoryStore) ZoneQueue(_ context.Context, zoneID string) ([]models.ZoneQueueMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := m.queues[zoneID]
	out := make([]models.ZoneQueueMembership, 0, len(q))
	for driverID, joined := range q {
		out = append(out, models.ZoneQueueMembership{DriverID: driverID, ZoneID: zoneID, JoinedAt: joined})
	}
	sort.SliceStable(out, func(i, k int) bool {
		if !out[i].JoinedAt.Equal(out[k].JoinedAt) {
			return out[i].JoinedAt.Before(out[k].JoinedAt)
		}
		return out[i].DriverID < out[k].DriverID
	})
	return out, nil
}

func (m *MemoryStore) JoinQueue(_ context.Context, zoneID, driverID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[zoneID]
	if !ok {
		q = make(map[string]time.Time)
		m.queues[zoneID] = q
	}
	if _, exists := q[driverID]; !exists {
		q[driverID] = at
	}
	return nil
}

func (m *MemoryStore) LeaveQueue(_ context.Context, zoneID, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues[zoneID], driverID)
	return nil
}

func sortZones(zs []models.Zone) {
	sort.SliceStable(zs, func(i, j int) bool {
		if !zs[i].CreatedAt.Equal(zs[j].CreatedAt) {
			return zs[i].CreatedAt.Before(zs[j].CreatedAt)
		}
		return zs[i].ID < zs[j].ID
	})
}
