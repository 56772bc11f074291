package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

func pendingJob(id string, pickup time.Time) models.Job {
	return models.Job{
		ID:         id,
		TenantID:   "t1",
		Status:     models.JobPending,
		AutoMatch:  true,
		PickupTime: pickup,
	}
}

func TestCompareAndAssignHappyPath(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.PutJob(pendingJob("j1", time.Now()))
	m.PutDriver(models.Driver{ID: "d1", TenantID: "t1", Callsign: "D1", Status: models.DriverFree})

	if err := m.CompareAndAssign(ctx, "j1", "d1"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	j, _ := m.Job("j1")
	if j.Status != models.JobDispatched || j.DriverID == nil || *j.DriverID != "d1" {
		t.Fatalf("job not dispatched: %+v", j)
	}
	d, _ := m.Driver("d1")
	if d.Status != models.DriverBusy {
		t.Fatalf("driver not busy: %+v", d)
	}
}

func TestCompareAndAssignRaceLostOnSecondClaim(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.PutJob(pendingJob("j1", time.Now()))
	m.PutDriver(models.Driver{ID: "d1", TenantID: "t1", Callsign: "D1", Status: models.DriverFree})
	m.PutDriver(models.Driver{ID: "d2", TenantID: "t1", Callsign: "D2", Status: models.DriverFree})

	if err := m.CompareAndAssign(ctx, "j1", "d1"); err != nil {
		t.Fatalf("first assign failed: %v", err)
	}
	if err := m.CompareAndAssign(ctx, "j1", "d2"); !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost for claimed job, got %v", err)
	}
	d2, _ := m.Driver("d2")
	if d2.Status != models.DriverFree {
		t.Fatalf("losing driver must stay FREE, got %s", d2.Status)
	}
}

func TestCompareAndAssignRejectsBusyDriver(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.PutJob(pendingJob("j1", time.Now()))
	m.PutJob(pendingJob("j2", time.Now()))
	m.PutDriver(models.Driver{ID: "d1", TenantID: "t1", Callsign: "D1", Status: models.DriverFree})

	if err := m.CompareAndAssign(ctx, "j1", "d1"); err != nil {
		t.Fatalf("first assign failed: %v", err)
	}
	if err := m.CompareAndAssign(ctx, "j2", "d1"); !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost for busy driver, got %v", err)
	}
	j2, _ := m.Job("j2")
	if j2.Status != models.JobPending {
		t.Fatalf("losing job must stay PENDING, got %s", j2.Status)
	}
}

func TestPendingJobsWindowAndOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.PutJob(pendingJob("stale", now.Add(-3*time.Hour)))
	m.PutJob(pendingJob("later", now.Add(1*time.Hour)))
	m.PutJob(pendingJob("soon", now.Add(10*time.Minute)))
	m.PutJob(pendingJob("far", now.Add(25*time.Hour)))
	manual := pendingJob("manual", now)
	manual.AutoMatch = false
	m.PutJob(manual)

	jobs, err := m.PendingJobs(ctx, "t1", now.Add(-2*time.Hour), now.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "soon" || jobs[1].ID != "later" {
		t.Fatalf("wrong order: %s, %s", jobs[0].ID, jobs[1].ID)
	}
}

func TestJoinQueueIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := m.JoinQueue(ctx, "z1", "d1", t0); err != nil {
		t.Fatal(err)
	}
	if err := m.JoinQueue(ctx, "z1", "d1", t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	q, err := m.ZoneQueue(ctx, "z1")
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 1 || !q[0].JoinedAt.Equal(t0) {
		t.Fatalf("re-join must keep original timestamp: %+v", q)
	}
}

func TestZoneQueueFIFOOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.JoinQueue(ctx, "z1", "late", t0.Add(time.Hour))
	m.JoinQueue(ctx, "z1", "early", t0)
	q, _ := m.ZoneQueue(ctx, "z1")
	if len(q) != 2 || q[0].DriverID != "early" {
		t.Fatalf("expected early first, got %+v", q)
	}
}
