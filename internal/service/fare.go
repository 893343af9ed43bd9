package service

import (
	"math"

	"github.com/shopspring/decimal"

	"swiftdrop/internal/domain"
)

// Default fare constants, in whole currency units.
const (
	DefaultBaseFare   = 500
	DefaultPricePerKm = 200
)

const earthRadiusKm = 6371.0

// Fare is a fare breakdown. Total is rounded to the currency unit; the
// components keep their exact values.
type Fare struct {
	BaseFare     decimal.Decimal `json:"baseFare"`
	DistanceFare decimal.Decimal `json:"distanceFare"`
	SurgeFee     decimal.Decimal `json:"surgeFee"`
	Total        int64           `json:"total"`
}

// FareCalculator prices trips. It holds no state beyond its constants.
type FareCalculator struct {
	baseFare   decimal.Decimal
	pricePerKm decimal.Decimal
}

// NewFareCalculator creates a calculator with the given constants.
func NewFareCalculator(baseFare, pricePerKm int64) FareCalculator {
	return FareCalculator{
		baseFare:   decimal.NewFromInt(baseFare),
		pricePerKm: decimal.NewFromInt(pricePerKm),
	}
}

// DefaultFareCalculator uses DefaultBaseFare and DefaultPricePerKm.
func DefaultFareCalculator() FareCalculator {
	return NewFareCalculator(DefaultBaseFare, DefaultPricePerKm)
}

// Calculate prices a trip of distanceKm with the surge multiplier applied on
// top of base and distance fare. Negative distances count as zero and
// multipliers below 1 as 1.
func (c FareCalculator) Calculate(distanceKm, surgeMultiplier float64) Fare {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	if surgeMultiplier < 1 || math.IsNaN(surgeMultiplier) {
		surgeMultiplier = 1
	}

	distanceFare := c.pricePerKm.Mul(decimal.NewFromFloat(distanceKm))
	subtotal := c.baseFare.Add(distanceFare)
	surgeFee := subtotal.Mul(decimal.NewFromFloat(surgeMultiplier).Sub(decimal.NewFromInt(1)))

	return Fare{
		BaseFare:     c.baseFare,
		DistanceFare: distanceFare,
		SurgeFee:     surgeFee,
		Total:        subtotal.Add(surgeFee).Round(0).IntPart(),
	}
}

// ForRide prices a ride from its stored distance and surge.
func (c FareCalculator) ForRide(ride *domain.Ride) Fare {
	return c.Calculate(ride.DistanceKm, ride.SurgeMultiplier)
}

// SplitCommission divides total into the platform's cut, rounded half-up to
// the currency unit, and the driver's earning. The earning is derived by
// subtraction so the two always sum to total.
func SplitCommission(total int64, percent float64) (platformCut, driverEarning int64) {
	cut := decimal.NewFromInt(total).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	return cut, total - cut
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b domain.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
