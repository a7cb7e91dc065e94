package geo

import (
	"math"

	"github.com/FACorreiaa/loci-routes/internal/app/models"
)

// EarthRadiusMeters is the mean radius PostGIS uses for sphere calculations.
const EarthRadiusMeters = 6371008.8

// DistanceMeters is the great-circle (haversine) distance between a and b.
func DistanceMeters(a, b models.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// PathKilometers sums consecutive legs and rounds to two decimals.
func PathKilometers(points []models.Coordinates) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceMeters(points[i-1], points[i])
	}
	return math.Round(total/10) / 100
}
