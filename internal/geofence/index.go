// Package geofence classifies coordinates into a static table of named
// circular regions.
package geofence

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371

// Index holds the region table. It is built once at startup and read-only
// afterwards, so classification needs no locking.
type Index struct {
	regions []Region
	byID    map[string]int
}

// NewIndex validates the table and preserves its order.
func NewIndex(regions []Region) (*Index, error) {
	idx := &Index{
		regions: make([]Region, 0, len(regions)),
		byID:    make(map[string]int, len(regions)),
	}
	for i, r := range regions {
		if r.ID == "" {
			return nil, fmt.Errorf("region %d: empty id", i)
		}
		if _, exists := idx.byID[r.ID]; exists {
			return nil, fmt.Errorf("region %q: duplicate id", r.ID)
		}
		if r.RadiusKm <= 0 {
			return nil, fmt.Errorf("region %q: radius must be positive, got %v", r.ID, r.RadiusKm)
		}
		if r.CenterLat < -90 || r.CenterLat > 90 || r.CenterLon < -180 || r.CenterLon > 180 {
			return nil, fmt.Errorf("region %q: center out of range (%v, %v)", r.ID, r.CenterLat, r.CenterLon)
		}
		idx.byID[r.ID] = len(idx.regions)
		idx.regions = append(idx.regions, r)
	}
	return idx, nil
}

// Classify returns the first region whose circle contains the point, in table
// order, or nil when no region matches. Overlap is resolved by declaration
// order, not by nearest center. Callers are expected to have validated the
// coordinates already.
func (idx *Index) Classify(lat, lon float64) *Region {
	for i := range idx.regions {
		r := &idx.regions[i]
		if Haversine(lat, lon, r.CenterLat, r.CenterLon) <= r.RadiusKm {
			return r
		}
	}
	return nil
}

// Get looks up a region by id.
func (idx *Index) Get(id string) (*Region, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return &idx.regions[i], true
}

// Has reports whether the id is a known region.
func (idx *Index) Has(id string) bool {
	_, ok := idx.byID[id]
	return ok
}

// All returns the table in declaration order.
func (idx *Index) All() []Region {
	out := make([]Region, len(idx.regions))
	copy(out, idx.regions)
	return out
}

// Haversine returns the great-circle distance between two points in
// kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
