package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/taxi-dispatch/internal/models"
)

// PostgresStore backs the engines with a Postgres database. Result
// ordering mirrors MemoryStore so tie-breaks behave identically.
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
}

func NewPostgresStore(dsn string, log *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{db: db, log: log}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) TenantConfig(ctx context.Context, tenantID string) (models.TenantConfig, error) {
	var cfg models.TenantConfig
	row := p.db.QueryRowContext(ctx,
		`SELECT tenant_id, auto_dispatch, strategy, zone_pricing, currency
		   FROM tenant_configs WHERE tenant_id = $1`, tenantID)
	if err := row.Scan(&cfg.TenantID, &cfg.AutoDispatch, &cfg.Strategy, &cfg.ZonePricing, &cfg.Currency); err != nil {
		if err == sql.ErrNoRows {
			return models.TenantConfig{}, ErrNotFound
		}
		return models.TenantConfig{}, err
	}
	return cfg, nil
}

func (p *PostgresStore) Zones(ctx context.Context, tenantID string) ([]models.Zone, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, ring, created_at
		   FROM zones WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Zone
	for rows.Next() {
		var z models.Zone
		var ring []byte
		if err := rows.Scan(&z.ID, &z.TenantID, &z.Name, &ring, &z.CreatedAt); err != nil {
			return nil, err
		}
		// An undecodable ring never fails a pass; the zone just cannot
		// contain anything.
		if err := json.Unmarshal(ring, &z.Ring); err != nil {
			p.log.Warn("zone ring decode failed", "zone_id", z.ID, "error", err)
			z.Ring = nil
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PendingJobs(ctx context.Context, tenantID string, from, to time.Time) ([]models.Job, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, tenant_id, pickup_address, dropoff_address,
		        pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		        vehicle_class, pickup_time, status, driver_id, auto_match,
		        wait_and_return, wait_minutes, distance_miles, fare, created_at, updated_at
		   FROM jobs
		  WHERE tenant_id = $1 AND status = $2 AND auto_match AND driver_id IS NULL
		    AND pickup_time BETWEEN $3 AND $4
		  ORDER BY pickup_time`, tenantID, models.JobPending, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Job
	for rows.Next() {
		var j models.Job
		var puLat, puLng, doLat, doLng sql.NullFloat64
		var driverID sql.NullString
		if err := rows.Scan(&j.ID, &j.TenantID, &j.PickupAddress, &j.DropoffAddress,
			&puLat, &puLng, &doLat, &doLng,
			&j.VehicleClass, &j.PickupTime, &j.Status, &driverID, &j.AutoMatch,
			&j.WaitAndReturn, &j.WaitMinutes, &j.DistanceMiles, &j.Fare, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		if puLat.Valid && puLng.Valid {
			j.PickupCoord = &models.Coord{Lat: puLat.Float64, Lng: puLng.Float64}
		}
		if doLat.Valid && doLng.Valid {
			j.DropoffCoord = &models.Coord{Lat: doLat.Float64, Lng: doLng.Float64}
		}
		if driverID.Valid {
			j.DriverID = &driverID.String
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *PostgresStore) FreeDrivers(ctx context.Context, tenantID string) ([]models.Driver, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, tenant_id, callsign, status, lat, lng, updated_at
		   FROM drivers WHERE tenant_id = $1 AND status = $2 ORDER BY callsign`,
		tenantID, models.DriverFree)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		var d models.Driver
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Callsign, &d.Status, &lat, &lng, &d.Updated); err != nil {
			return nil, err
		}
		if lat.Valid && lng.Valid {
			d.Loc = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PricingRule(ctx context.Context, tenantID string, class models.VehicleClass) (*models.PricingRule, error) {
	var r models.PricingRule
	row := p.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, vehicle_class, base, per_mile, min_fare, wait_rate
		   FROM pricing_rules WHERE tenant_id = $1 AND vehicle_class = $2`, tenantID, class)
	if err := row.Scan(&r.ID, &r.TenantID, &r.VehicleClass, &r.Base, &r.PerMile, &r.MinFare, &r.WaitRate); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) FixedPrices(ctx context.Context, tenantID string) ([]models.FixedPrice, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, tenant_id, vehicle_class, pickup_text, dropoff_text,
		        pickup_zone_id, dropoff_zone_id, price, created_at
		   FROM fixed_prices WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.FixedPrice
	for rows.Next() {
		var f models.FixedPrice
		var class, puText, doText, puZone, doZone sql.NullString
		if err := rows.Scan(&f.ID, &f.TenantID, &class, &puText, &doText,
			&puZone, &doZone, &f.Price, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.VehicleClass = models.VehicleClass(class.String)
		f.PickupText = puText.String
		f.DropoffText = doText.String
		f.PickupZoneID = puZone.String
		f.DropoffZoneID = doZone.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// CompareAndAssign flips the driver and the job inside one transaction.
// The driver row is claimed first: its row lock serializes concurrent
// passes, so by the time the job update runs its preconditions are
// checked against committed state, not a stale statement snapshot. If
// either conditional update touches zero rows the transaction rolls
// back whole and the caller sees ErrRaceLost.
func (p *PostgresStore) CompareAndAssign(ctx context.Context, jobID, driverID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE drivers SET status = $2, updated_at = now()
		  WHERE id = $1 AND status = $3`,
		driverID, models.DriverBusy, models.DriverFree)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRaceLost
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = $2, driver_id = $3, updated_at = now()
		  WHERE id = $1 AND status = $4 AND driver_id IS NULL`,
		jobID, models.JobDispatched, driverID, models.JobPending)
	if err != nil {
		return err
	}
	n, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRaceLost
	}

	return tx.Commit()
}

func (p *PostgresStore) UpsertDriverLocation(ctx context.Context, tenantID, driverID string, loc models.Coord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO drivers (id, tenant_id, callsign, status, lat, lng, updated_at)
		VALUES ($1, $2, $1, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET lat = $4, lng = $5, updated_at = now()`,
		driverID, tenantID, models.DriverFree, loc.Lat, loc.Lng)
	return err
}
