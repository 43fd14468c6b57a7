// Package geo computes delivery distance and fees from coordinate
// pairs. Everything here is pure; absence of a coordinate is modeled
// with nil, never with a zero value, so "no location chosen" stays
// distinguishable from "co-located".
package geo

import (
	"math"

	"github.com/example/deliverydash/pkg/models"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance between two
// points, in kilometers.
func DistanceKm(a, b models.Coordinates) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// MaybeDistanceKm returns the distance between two optional points, or
// nil when either is missing.
func MaybeDistanceKm(a, b *models.Coordinates) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := DistanceKm(*a, *b)
	return &d
}

// DeliveryFee derives the fee from an optional distance. A nil distance
// collapses to the base fee alone.
func DeliveryFee(baseFee float64, distanceKm *float64, pricePerKm float64) float64 {
	if distanceKm == nil {
		return baseFee
	}
	return baseFee + *distanceKm*pricePerKm
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
