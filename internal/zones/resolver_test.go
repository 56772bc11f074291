package zones

import (
	"testing"

	"github.com/example/taxi-dispatch/internal/models"
)

func zone(id string, ring []models.Coord) models.Zone {
	return models.Zone{ID: id, TenantID: "t1", Name: id, Ring: ring}
}

func box(latLo, lngLo, latHi, lngHi float64) []models.Coord {
	return []models.Coord{
		{Lat: latLo, Lng: lngLo},
		{Lat: latLo, Lng: lngHi},
		{Lat: latHi, Lng: lngHi},
		{Lat: latHi, Lng: lngLo},
	}
}

func TestResolveNilPoint(t *testing.T) {
	zs := []models.Zone{zone("a", box(0, 0, 10, 10))}
	if z := Resolve(nil, zs); z != nil {
		t.Fatalf("expected nil zone, got %s", z.ID)
	}
}

func TestResolveNoMatch(t *testing.T) {
	zs := []models.Zone{zone("a", box(0, 0, 10, 10))}
	p := &models.Coord{Lat: 20, Lng: 20}
	if z := Resolve(p, zs); z != nil {
		t.Fatalf("expected nil zone, got %s", z.ID)
	}
}

func TestResolveFirstMatchWinsOnOverlap(t *testing.T) {
	// b fully contains a's area; a comes first so a wins.
	zs := []models.Zone{
		zone("a", box(2, 2, 8, 8)),
		zone("b", box(0, 0, 10, 10)),
	}
	p := &models.Coord{Lat: 5, Lng: 5}
	z := Resolve(p, zs)
	if z == nil || z.ID != "a" {
		t.Fatalf("expected zone a, got %+v", z)
	}
}

func TestResolveSkipsDegenerateRing(t *testing.T) {
	zs := []models.Zone{
		zone("bad", []models.Coord{{Lat: 0, Lng: 0}}),
		zone("good", box(0, 0, 10, 10)),
	}
	p := &models.Coord{Lat: 5, Lng: 5}
	z := Resolve(p, zs)
	if z == nil || z.ID != "good" {
		t.Fatalf("expected zone good, got %+v", z)
	}
}
