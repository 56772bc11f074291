package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobDispatched JobStatus = "DISPATCHED"
	JobEnRoute    JobStatus = "EN_ROUTE"
	JobArrived    JobStatus = "ARRIVED"
	JobPOB        JobStatus = "POB"
	JobCompleted  JobStatus = "COMPLETED"
	JobCancelled  JobStatus = "CANCELLED"
	JobNoShow     JobStatus = "NO_SHOW"
)

// Terminal reports whether a job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobNoShow
}

type DriverStatus string

const (
	DriverFree    DriverStatus = "FREE"
	DriverBusy    DriverStatus = "BUSY"
	DriverOffDuty DriverStatus = "OFF_DUTY"
)

type VehicleClass string

const (
	ClassSaloon    VehicleClass = "SALOON"
	ClassEstate    VehicleClass = "ESTATE"
	ClassExecutive VehicleClass = "EXECUTIVE"
	ClassMPV       VehicleClass = "MPV"
	ClassMinibus   VehicleClass = "MINIBUS"
)

// Job is a ride request. DriverID is set only while the job is in an
// assigned status (DISPATCHED through COMPLETED).
type Job struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	PickupAddress  string         `json:"pickup_address"`
	DropoffAddress string         `json:"dropoff_address"`
	PickupCoord    *Coord         `json:"pickup_coord,omitempty"`
	DropoffCoord   *Coord         `json:"dropoff_coord,omitempty"`
	VehicleClass   VehicleClass   `json:"vehicle_class"`
	PickupTime     time.Time      `json:"pickup_time"`
	Status         JobStatus      `json:"status"`
	DriverID       *string        `json:"driver_id,omitempty"`
	AutoMatch      bool           `json:"auto_match"`
	Vias           []string       `json:"vias,omitempty"`
	WaitAndReturn  bool           `json:"wait_and_return"`
	WaitMinutes    float64        `json:"wait_minutes"`
	DistanceMiles  float64        `json:"distance_miles"`
	Fare           float64        `json:"fare"`
	Breakdown      *FareBreakdown `json:"breakdown,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type Driver struct {
	ID       string       `json:"id"`
	TenantID string       `json:"tenant_id"`
	Callsign string       `json:"callsign"`
	Status   DriverStatus `json:"status"`
	Loc      *Coord       `json:"loc,omitempty"`
	Updated  time.Time    `json:"updated"`
}

// Zone is a named polygon owned by a tenant. Ring is the decoded vertex
// sequence; it is implicitly closed and a ring with fewer than three
// vertices never contains anything.
type Zone struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Ring      []Coord   `json:"ring"`
	CreatedAt time.Time `json:"created_at"`
}

// ZoneQueueMembership records when a driver joined a zone's waiting queue.
type ZoneQueueMembership struct {
	DriverID string    `json:"driver_id"`
	ZoneID   string    `json:"zone_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// PricingRule is the per-tenant, per-vehicle-class tariff.
type PricingRule struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	Base         float64      `json:"base"`
	PerMile      float64      `json:"per_mile"`
	MinFare      float64      `json:"min_fare"`
	WaitRate     float64      `json:"wait_rate"`
}

// FixedPrice overrides the metered fare for a route, matched either by
// address text or by a (pickup zone, dropoff zone) pair.
type FixedPrice struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenant_id"`
	VehicleClass  VehicleClass `json:"vehicle_class"`
	PickupText    string       `json:"pickup_text,omitempty"`
	DropoffText   string       `json:"dropoff_text,omitempty"`
	PickupZoneID  string       `json:"pickup_zone_id,omitempty"`
	DropoffZoneID string       `json:"dropoff_zone_id,omitempty"`
	Price         float64      `json:"price"`
	CreatedAt     time.Time    `json:"created_at"`
}

type Strategy string

const (
	StrategyClosest        Strategy = "CLOSEST"
	StrategyLongestWaiting Strategy = "LONGEST_WAITING"
)

// TenantConfig carries the dispatch settings the engines read.
type TenantConfig struct {
	TenantID     string   `json:"tenant_id"`
	AutoDispatch bool     `json:"auto_dispatch"`
	Strategy     Strategy `json:"strategy"`
	ZonePricing  bool     `json:"zone_pricing"`
	Currency     string   `json:"currency"`
}

type SurchargeLine struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// FareBreakdown itemizes how a quoted price was built.
type FareBreakdown struct {
	Base          float64         `json:"base"`
	Mileage       float64         `json:"mileage"`
	Surcharges    []SurchargeLine `json:"surcharges,omitempty"`
	IsFixed       bool            `json:"is_fixed"`
	MatchedRuleID string          `json:"matched_rule_id,omitempty"`
}
