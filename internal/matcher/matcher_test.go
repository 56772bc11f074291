package matcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/storage"
)

var passTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// storeAssigner commits through the store's conditional update, like the
// real assignment transaction but without notifications.
type storeAssigner struct {
	store *storage.MemoryStore
	calls int
}

func (a *storeAssigner) Assign(ctx context.Context, job models.Job, driver models.Driver) error {
	a.calls++
	return a.store.CompareAndAssign(ctx, job.ID, driver.ID)
}

func newService(store *storage.MemoryStore) (*Service, *storeAssigner) {
	a := &storeAssigner{store: store}
	return &Service{
		Store:    store,
		Queues:   store,
		Assigner: a,
		Now:      func() time.Time { return passTime },
	}, a
}

func seedTenant(store *storage.MemoryStore, strategy models.Strategy) {
	store.PutTenantConfig(models.TenantConfig{
		TenantID:     "t1",
		AutoDispatch: true,
		Strategy:     strategy,
		Currency:     "GBP",
	})
}

func cityZone(store *storage.MemoryStore) models.Zone {
	z := models.Zone{
		ID: "z1", TenantID: "t1", Name: "Centre",
		Ring: []models.Coord{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
		},
		CreatedAt: passTime.Add(-time.Hour),
	}
	store.PutZone(z)
	return z
}

func putJob(store *storage.MemoryStore, id string, pickup *models.Coord) {
	store.PutJob(models.Job{
		ID:          id,
		TenantID:    "t1",
		Status:      models.JobPending,
		AutoMatch:   true,
		PickupTime:  passTime.Add(10 * time.Minute),
		PickupCoord: pickup,
	})
}

func putDriver(store *storage.MemoryStore, id, callsign string, loc *models.Coord) {
	store.PutDriver(models.Driver{
		ID: id, TenantID: "t1", Callsign: callsign,
		Status: models.DriverFree, Loc: loc,
	})
}

func TestClosestPicksNearerDriver(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	cityZone(store)
	putJob(store, "j1", &models.Coord{Lat: 0.5, Lng: 0.5})
	putDriver(store, "x", "X1", &models.Coord{Lat: 0.55, Lng: 0.5})  // ~3.5 miles out
	putDriver(store, "y", "Y1", &models.Coord{Lat: 0.507, Lng: 0.5}) // ~0.5 miles out

	svc, _ := newService(store)
	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 1 {
		t.Fatalf("expected 1 assignment, got %+v", rep)
	}
	j, _ := store.Job("j1")
	if j.DriverID == nil || *j.DriverID != "y" {
		t.Fatalf("expected driver y, got %+v", j.DriverID)
	}
}

func TestLongestWaitingStrictFIFO(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyLongestWaiting)
	z := cityZone(store)
	putJob(store, "j1", &models.Coord{Lat: 0.5, Lng: 0.5})
	// "near" is much closer but joined the queue later.
	putDriver(store, "near", "A1", &models.Coord{Lat: 0.5, Lng: 0.5})
	putDriver(store, "early", "B1", &models.Coord{Lat: 0.9, Lng: 0.9})
	store.JoinQueue(ctx, z.ID, "near", passTime.Add(-10*time.Minute))
	store.JoinQueue(ctx, z.ID, "early", passTime.Add(-2*time.Hour))

	svc, _ := newService(store)
	rep, err := svc.RunPass(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 1 {
		t.Fatalf("expected 1 assignment, got %+v", rep)
	}
	j, _ := store.Job("j1")
	if j.DriverID == nil || *j.DriverID != "early" {
		t.Fatalf("expected longest-waiting driver, got %+v", j.DriverID)
	}
}

func TestLongestWaitingFallsBackToClosest(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyLongestWaiting)
	cityZone(store)
	putJob(store, "j1", &models.Coord{Lat: 0.5, Lng: 0.5})
	// No queue members anywhere; both drivers sit inside the zone.
	putDriver(store, "far", "A1", &models.Coord{Lat: 0.9, Lng: 0.9})
	putDriver(store, "close", "B1", &models.Coord{Lat: 0.51, Lng: 0.5})

	svc, _ := newService(store)
	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 1 {
		t.Fatalf("expected 1 assignment, got %+v", rep)
	}
	j, _ := store.Job("j1")
	if j.DriverID == nil || *j.DriverID != "close" {
		t.Fatalf("expected closest fallback, got %+v", j.DriverID)
	}
}

func TestZoneRestrictionIsAdvisory(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	cityZone(store)
	putJob(store, "j1", &models.Coord{Lat: 0.5, Lng: 0.5})
	// Only driver is far outside the zone, not queued anywhere.
	putDriver(store, "out", "O1", &models.Coord{Lat: 30, Lng: 30})

	svc, _ := newService(store)
	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 1 {
		t.Fatalf("zone with no drivers must fall back to the global pool: %+v", rep)
	}
}

func TestQueueMembersPreferredOverResidents(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	z := cityZone(store)
	putJob(store, "j1", &models.Coord{Lat: 0.5, Lng: 0.5})
	// Resident is nearer, but the queued driver forms the candidate set.
	putDriver(store, "resident", "R1", &models.Coord{Lat: 0.5, Lng: 0.51})
	putDriver(store, "queued", "Q1", &models.Coord{Lat: 0.9, Lng: 0.9})
	store.JoinQueue(ctx, z.ID, "queued", passTime.Add(-time.Hour))

	svc, _ := newService(store)
	rep, err := svc.RunPass(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 1 {
		t.Fatalf("expected 1 assignment, got %+v", rep)
	}
	j, _ := store.Job("j1")
	if j.DriverID == nil || *j.DriverID != "queued" {
		t.Fatalf("expected queued driver to win, got %+v", j.DriverID)
	}
}

func TestDriverWithoutLocationSortsLast(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	putJob(store, "j1", &models.Coord{Lat: 0.5, Lng: 0.5})
	putDriver(store, "nowhere", "A1", nil)
	putDriver(store, "located", "B1", &models.Coord{Lat: 0.9, Lng: 0.9})

	svc, _ := newService(store)
	if _, err := svc.RunPass(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	j, _ := store.Job("j1")
	if j.DriverID == nil || *j.DriverID != "located" {
		t.Fatalf("driver with a location must beat one without, got %+v", j.DriverID)
	}
}

func TestNoPickupCoordPicksFirstByCallsign(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	putJob(store, "j1", nil)
	putDriver(store, "b", "B1", &models.Coord{Lat: 0.5, Lng: 0.5})
	putDriver(store, "a", "A1", nil)

	svc, _ := newService(store)
	if _, err := svc.RunPass(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	j, _ := store.Job("j1")
	if j.DriverID == nil || *j.DriverID != "a" {
		t.Fatalf("expected first driver in callsign order, got %+v", j.DriverID)
	}
}

func TestPerPassDriverExclusivity(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	const n = 5
	for i := 0; i < n; i++ {
		putJob(store, fmt.Sprintf("j%d", i), &models.Coord{Lat: 0.5, Lng: 0.5})
		putDriver(store, fmt.Sprintf("d%d", i), fmt.Sprintf("C%d", i), &models.Coord{Lat: 0.5, Lng: 0.5})
	}

	svc, _ := newService(store)
	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != n || rep.Failed != 0 {
		t.Fatalf("expected %d assignments, got %+v", n, rep)
	}
	seen := make(map[string]string)
	for i := 0; i < n; i++ {
		j, _ := store.Job(fmt.Sprintf("j%d", i))
		if j.DriverID == nil {
			t.Fatalf("job j%d unassigned", i)
		}
		if prev, dup := seen[*j.DriverID]; dup {
			t.Fatalf("driver %s double-booked on %s and %s", *j.DriverID, prev, j.ID)
		}
		seen[*j.DriverID] = j.ID
	}
}

func TestNoFreeDriversLeavesJobsPending(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	putJob(store, "j1", &models.Coord{Lat: 0.5, Lng: 0.5})
	putJob(store, "j2", nil)

	svc, _ := newService(store)
	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalPending != 2 || rep.Assigned != 0 || rep.Failed != 2 {
		t.Fatalf("expected all-failed report, got %+v", rep)
	}
	for _, id := range []string{"j1", "j2"} {
		j, _ := store.Job(id)
		if j.Status != models.JobPending {
			t.Fatalf("job %s status changed to %s", id, j.Status)
		}
	}
}

func TestAutoDispatchDisabledIsZeroEffect(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutTenantConfig(models.TenantConfig{TenantID: "t1", AutoDispatch: false})
	putJob(store, "j1", nil)
	putDriver(store, "d1", "D1", nil)

	svc, a := newService(store)
	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalPending != 0 || rep.Assigned != 0 || a.calls != 0 {
		t.Fatalf("disabled tenant must be a zero-effect pass: %+v", rep)
	}
}

func TestUnknownTenantIsZeroEffect(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, _ := newService(store)
	rep, err := svc.RunPass(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 0 || rep.TotalPending != 0 {
		t.Fatalf("expected empty report, got %+v", rep)
	}
}

// raceAssigner loses the commit race for one job.
type raceAssigner struct {
	inner  Assigner
	loseOn string
}

func (r *raceAssigner) Assign(ctx context.Context, job models.Job, driver models.Driver) error {
	if job.ID == r.loseOn {
		return storage.ErrRaceLost
	}
	return r.inner.Assign(ctx, job, driver)
}

func TestRaceLostIsSoftFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	putJob(store, "j1", nil)
	putJob(store, "j2", nil)
	putDriver(store, "d1", "A1", nil)
	putDriver(store, "d2", "B1", nil)

	svc, a := newService(store)
	svc.Assigner = &raceAssigner{inner: a, loseOn: "j1"}

	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 1 || rep.Failed != 1 {
		t.Fatalf("race loss must not abort the pass: %+v", rep)
	}
	j1, _ := store.Job("j1")
	if j1.Status != models.JobPending {
		t.Fatalf("raced job must stay PENDING, got %s", j1.Status)
	}
	var raced *JobOutcome
	for i := range rep.Details {
		if rep.Details[i].JobID == "j1" {
			raced = &rep.Details[i]
		}
	}
	if raced == nil || raced.Reason != "race_lost" {
		t.Fatalf("expected race_lost outcome for j1: %+v", rep.Details)
	}
}

func TestEarlierPickupGetsScarceDriver(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(store, models.StrategyClosest)
	late := models.Job{
		ID: "late", TenantID: "t1", Status: models.JobPending, AutoMatch: true,
		PickupTime: passTime.Add(2 * time.Hour),
	}
	early := models.Job{
		ID: "early", TenantID: "t1", Status: models.JobPending, AutoMatch: true,
		PickupTime: passTime.Add(5 * time.Minute),
	}
	store.PutJob(late)
	store.PutJob(early)
	putDriver(store, "d1", "D1", nil)

	svc, _ := newService(store)
	rep, err := svc.RunPass(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Assigned != 1 || rep.Failed != 1 {
		t.Fatalf("expected one of two jobs assigned, got %+v", rep)
	}
	e, _ := store.Job("early")
	if e.DriverID == nil || *e.DriverID != "d1" {
		t.Fatal("earliest pickup must win the only driver")
	}
	l, _ := store.Job("late")
	if l.Status != models.JobPending {
		t.Fatalf("later job must stay PENDING, got %s", l.Status)
	}
}
