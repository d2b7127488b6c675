package geofence

// Region is one named circular geofence. Table order is meaningful: Classify
// walks regions in declaration order and returns the first hit, so when two
// circles overlap the earlier entry wins.
type Region struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	CenterLat   float64 `json:"center_lat"`
	CenterLon   float64 `json:"center_lon"`
	RadiusKm    float64 `json:"radius_km"`
}
