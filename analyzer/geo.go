package analyzer

import (
	"math"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

// earthRadiusMeters is the IUGG mean Earth radius.
const earthRadiusMeters = 6371008.8

// Distance bands, nearest first.
var distanceBands = []string{"<1km", "1-3km", "3-5km", ">5km"}

// Compass points in clockwise order starting at north.
var compassPoints = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b googleapi.LatLng) float64 {
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BearingDegrees returns the initial bearing from a to b in [0, 360).
func BearingDegrees(a, b googleapi.LatLng) float64 {
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// CompassPoint maps a bearing to one of eight 45° sectors centred on N, NE, ...
func CompassPoint(deg float64) string {
	deg = math.Mod(math.Mod(deg, 360)+360, 360)
	idx := int(math.Floor((deg+22.5)/45)) % len(compassPoints)
	return compassPoints[idx]
}

// DistanceBand buckets a distance for the density breakdown.
func DistanceBand(meters float64) string {
	switch {
	case meters < 1000:
		return distanceBands[0]
	case meters < 3000:
		return distanceBands[1]
	case meters < 5000:
		return distanceBands[2]
	default:
		return distanceBands[3]
	}
}
