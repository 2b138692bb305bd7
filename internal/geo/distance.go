package geo

import (
	"math"

	"github.com/FranksOps/farescout/internal/listing"
)

const (
	// earthRadiusKm is the mean earth radius used by geodesy libraries for
	// great-circle calculations.
	earthRadiusKm = 6371.009
	kmPerMile     = 1.609344
)

// GreatCircleMiles returns the great-circle distance between two points in
// statute miles.
func GreatCircleMiles(a, b listing.Location) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c / kmPerMile
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
