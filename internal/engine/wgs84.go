package engine

import "math"

const earthRadiusM = 6378137.0

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64
	Lon float64
}

// HaversineKm returns the great-circle distance between two coordinates
// in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const radiusKm = 6371.0
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return radiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ElevationCircle returns the coordinate itself followed by nb points on
// a circle of the given radius (meters) around it, evenly spaced. The
// surrounding samples feed the peak detection.
func ElevationCircle(lat, lon, radiusM float64, nb int) []LatLon {
	points := make([]LatLon, 0, nb+1)
	points = append(points, LatLon{Lat: lat, Lon: lon})
	for k := 0; k < nb; k++ {
		angle := 2 * math.Pi * float64(k) / float64(nb)
		dx := radiusM * math.Cos(angle)
		dy := radiusM * math.Sin(angle)
		points = append(points, LatLon{
			Lat: lat + (180/math.Pi)*(dy/earthRadiusM),
			Lon: lon + (180/math.Pi)*(dx/earthRadiusM)/math.Cos(lat*math.Pi/180),
		})
	}
	return points
}
