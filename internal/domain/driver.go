package domain

import "time"

// DriverStatus represents the availability of a driver.
type DriverStatus string

const (
	DriverStatusAvailable DriverStatus = "available"
	DriverStatusOnTrip    DriverStatus = "on-trip"
	DriverStatusOffline   DriverStatus = "offline"
)

// VehicleType is the kind of vehicle a driver operates.
type VehicleType string

const (
	VehicleTypeBike  VehicleType = "bike"
	VehicleTypeCar   VehicleType = "car"
	VehicleTypeTruck VehicleType = "truck"
	VehicleTypeVan   VehicleType = "van"
)

// DriverProfile is the operational state of a driver.
// CurrentRide is a back-reference; the ride owns the binding.
type DriverProfile struct {
	UserID      string
	VehicleType VehicleType
	Status      DriverStatus
	CurrentRide string
	UpdatedAt   time.Time
}

// IsBusy reports whether the driver is on an active trip.
func (d *DriverProfile) IsBusy() bool {
	return d.Status == DriverStatusOnTrip && d.CurrentRide != ""
}
