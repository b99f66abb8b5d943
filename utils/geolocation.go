package utils

import (
	"fmt"
	"math"
	"net/url"

	"preventanyl/models"
)

const (
	EarthRadiusM = 6371000.0
	DegToRad     = math.Pi / 180.0
)

// CalculateDistance calculates the distance in meters between two
// coordinates using the Haversine formula
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * DegToRad
	lon1Rad := lon1 * DegToRad
	lat2Rad := lat2 * DegToRad
	lon2Rad := lon2 * DegToRad

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// DistanceBetween is CalculateDistance for two coordinates.
func DistanceBetween(a, b models.Coordinate) float64 {
	return CalculateDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// IsValidCoordinate checks if latitude and longitude values are valid
func IsValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// AppleMapsDirectionsURL links walking directions from the user to a kit.
// Without a known origin Maps starts from the device's current location.
func AppleMapsDirectionsURL(from *models.Coordinate, to models.Coordinate) string {
	q := url.Values{}
	if from != nil {
		q.Set("saddr", formatCoordinate(*from))
	}
	q.Set("daddr", formatCoordinate(to))
	q.Set("dirflg", "w")
	return "https://maps.apple.com/?" + q.Encode()
}

func formatCoordinate(c models.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}
