package domain

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKm(a, b Geo) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Centroid averages a polygon ring into a single representative point.
// Good enough for alert polygons; this is identity math, not cartography.
func Centroid(ring []Geo) Geo {
	if len(ring) == 0 {
		return Geo{}
	}
	var lat, lon float64
	for _, p := range ring {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(ring))
	return Geo{Lat: lat / n, Lon: lon / n}
}
