// Package pricing turns ride requests into deterministic, itemized fares.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/example/taxi-dispatch/internal/geo"
	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/observability"
	"github.com/example/taxi-dispatch/internal/storage"
	"github.com/example/taxi-dispatch/internal/zones"
)

// Tariff defaults used when a tenant has no rule for the requested class.
const (
	defaultBase     = 3.00
	defaultPerMile  = 2.00
	defaultMinFare  = 5.00
	defaultWaitRate = 0.00

	// stopCharge is the flat addition per intermediate stop.
	stopCharge = 5.00

	// Class multipliers apply only on the no-rule fallback path. They
	// scale the default base and per-mile rates, never a tenant rule.
	premiumMultiplier = 1.2
	largeMultiplier   = 1.5
)

// TariffSource is the subset of the store the engine reads.
type TariffSource interface {
	TenantConfig(ctx context.Context, tenantID string) (models.TenantConfig, error)
	Zones(ctx context.Context, tenantID string) ([]models.Zone, error)
	PricingRule(ctx context.Context, tenantID string, class models.VehicleClass) (*models.PricingRule, error)
	FixedPrices(ctx context.Context, tenantID string) ([]models.FixedPrice, error)
}

type QuoteRequest struct {
	TenantID       string              `json:"tenant_id"`
	PickupAddress  string              `json:"pickup_address"`
	DropoffAddress string              `json:"dropoff_address"`
	PickupCoord    *models.Coord       `json:"pickup_coord,omitempty"`
	DropoffCoord   *models.Coord       `json:"dropoff_coord,omitempty"`
	VehicleClass   models.VehicleClass `json:"vehicle_class"`
	DistanceMiles  float64             `json:"distance_miles"`
	WaitAndReturn  bool                `json:"wait_and_return"`
	WaitMinutes    float64             `json:"wait_minutes"`
	Vias           []string            `json:"vias,omitempty"`
}

type Quote struct {
	Price     float64              `json:"price"`
	Currency  string               `json:"currency"`
	Breakdown models.FareBreakdown `json:"breakdown"`
}

// Engine prices ride requests. Quote is a pure read over the tariff
// source; concurrent calls need no coordination.
type Engine struct {
	Tariffs TariffSource
	Logger  *slog.Logger
}

// Quote prices a request. Precedence is strict: a matching fixed price
// short-circuits everything; otherwise the metered cascade runs (rule or
// documented default, wait-and-return transform, minimum fare floor,
// per-stop charge, final rounding).
func (e *Engine) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	cfg, err := e.Tariffs.TenantConfig(ctx, req.TenantID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Quote{}, fmt.Errorf("pricing: load tenant config: %w", err)
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "GBP"
	}

	class := req.VehicleClass
	if class == "" {
		class = models.ClassSaloon
	}

	distance := req.DistanceMiles
	if distance == 0 && req.PickupCoord != nil && req.DropoffCoord != nil {
		distance = geo.MilesBetween(*req.PickupCoord, *req.DropoffCoord)
	}

	if q, ok, err := e.fixedQuote(ctx, req, cfg, class, currency); err != nil {
		return Quote{}, err
	} else if ok {
		observability.QuotesTotal.Inc()
		return q, nil
	}

	rule, err := e.Tariffs.PricingRule(ctx, req.TenantID, class)
	if err != nil {
		return Quote{}, fmt.Errorf("pricing: load rule: %w", err)
	}
	if rule == nil {
		rule = defaultRule(class)
	}

	effectiveDistance := distance
	if req.WaitAndReturn {
		effectiveDistance = 2 * distance
	}
	mileage := effectiveDistance * rule.PerMile
	total := rule.Base + mileage
	if req.WaitAndReturn {
		total += req.WaitMinutes * rule.WaitRate
	}
	if total < rule.MinFare {
		total = rule.MinFare
	}

	var surcharges []models.SurchargeLine
	if n := len(req.Vias); n > 0 {
		amount := float64(n) * stopCharge
		surcharges = append(surcharges, models.SurchargeLine{
			Name:   fmt.Sprintf("%d x Stops", n),
			Amount: amount,
		})
		total += amount
	}

	observability.QuotesTotal.Inc()
	return Quote{
		Price:    round2(total),
		Currency: currency,
		Breakdown: models.FareBreakdown{
			Base:          rule.Base,
			Mileage:       round2(mileage),
			Surcharges:    surcharges,
			MatchedRuleID: rule.ID,
		},
	}, nil
}

// fixedQuote checks fixed-price overrides: exact-text routes first-class,
// then zone pairs when the tenant has zone pricing on. Entries arrive in
// creation order, so the first hit is the same on every call.
func (e *Engine) fixedQuote(ctx context.Context, req QuoteRequest, cfg models.TenantConfig, class models.VehicleClass, currency string) (Quote, bool, error) {
	entries, err := e.Tariffs.FixedPrices(ctx, req.TenantID)
	if err != nil {
		return Quote{}, false, fmt.Errorf("pricing: load fixed prices: %w", err)
	}
	if len(entries) == 0 {
		return Quote{}, false, nil
	}

	var puZone, doZone *models.Zone
	if cfg.ZonePricing && req.PickupCoord != nil && req.DropoffCoord != nil {
		zs, err := e.Tariffs.Zones(ctx, req.TenantID)
		if err != nil {
			return Quote{}, false, fmt.Errorf("pricing: load zones: %w", err)
		}
		puZone = zones.Resolve(req.PickupCoord, zs)
		doZone = zones.Resolve(req.DropoffCoord, zs)
	}

	for _, fp := range entries {
		if fp.VehicleClass != "" && fp.VehicleClass != class {
			continue
		}
		if matchesText(fp, req) || matchesZonePair(fp, puZone, doZone) {
			e.logger().Debug("fixed price matched", "tenant_id", req.TenantID, "fixed_price_id", fp.ID)
			return Quote{
				Price:    round2(fp.Price),
				Currency: currency,
				Breakdown: models.FareBreakdown{
					IsFixed:       true,
					MatchedRuleID: fp.ID,
				},
			}, true, nil
		}
	}
	return Quote{}, false, nil
}

func matchesText(fp models.FixedPrice, req QuoteRequest) bool {
	if fp.PickupText == "" || fp.DropoffText == "" {
		return false
	}
	return containsFold(req.PickupAddress, fp.PickupText) &&
		containsFold(req.DropoffAddress, fp.DropoffText)
}

func matchesZonePair(fp models.FixedPrice, puZone, doZone *models.Zone) bool {
	if fp.PickupZoneID == "" || fp.DropoffZoneID == "" || puZone == nil || doZone == nil {
		return false
	}
	return fp.PickupZoneID == puZone.ID && fp.DropoffZoneID == doZone.ID
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// defaultRule builds the hard-coded tariff, scaled for premium and
// large-capacity classes. Tenant rules are never scaled.
func defaultRule(class models.VehicleClass) *models.PricingRule {
	r := &models.PricingRule{
		ID:           "default",
		VehicleClass: class,
		Base:         defaultBase,
		PerMile:      defaultPerMile,
		MinFare:      defaultMinFare,
		WaitRate:     defaultWaitRate,
	}
	switch class {
	case models.ClassExecutive:
		r.Base *= premiumMultiplier
		r.PerMile *= premiumMultiplier
	case models.ClassMPV, models.ClassMinibus:
		r.Base *= largeMultiplier
		r.PerMile *= largeMultiplier
	}
	return r
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
