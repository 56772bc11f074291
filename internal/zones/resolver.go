// Package zones resolves coordinates to the tenant zone containing them.
package zones

import (
	"github.com/example/taxi-dispatch/internal/geo"
	"github.com/example/taxi-dispatch/internal/models"
)

// Resolve returns the first zone whose ring contains p, or nil when p is
// absent or no zone matches. Zones are checked in slice order; callers
// supply them ordered by creation time so overlapping zones resolve the
// same way on every pass (earliest-created zone wins).
//
// Resolve is read-only over the given slice and safe for concurrent use.
func Resolve(p *models.Coord, zs []models.Zone) *models.Zone {
	if p == nil {
		return nil
	}
	for i := range zs {
		if geo.PointInRing(*p, zs[i].Ring) {
			return &zs[i]
		}
	}
	return nil
}
