package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested     RideStatus = "requested"
	RideStatusAssigned      RideStatus = "assigned"
	RideStatusAccepted      RideStatus = "accepted"
	RideStatusRiderArrived  RideStatus = "rider_arrived"
	RideStatusDriverArrived RideStatus = "driver_arrived"
	RideStatusInProgress    RideStatus = "in_progress"
	RideStatusCompleted     RideStatus = "completed"
	RideStatusCancelled     RideStatus = "cancelled"
	RideStatusTimeout       RideStatus = "timeout"
	RideStatusUncompleted   RideStatus = "ride-uncompleted"
)

// IsTerminal reports whether no further transition is possible from s.
func (s RideStatus) IsTerminal() bool {
	switch s {
	case RideStatusCompleted, RideStatusCancelled, RideStatusTimeout, RideStatusUncompleted:
		return true
	}
	return false
}

// IsKnown reports whether s is one of the declared ride states.
func (s RideStatus) IsKnown() bool {
	switch s {
	case RideStatusRequested, RideStatusAssigned, RideStatusAccepted,
		RideStatusRiderArrived, RideStatusDriverArrived, RideStatusInProgress:
		return true
	}
	return s.IsTerminal()
}

// ServiceType distinguishes passenger trips from parcel deliveries.
type ServiceType string

const (
	ServiceTypePassenger ServiceType = "passenger"
	ServiceTypeDelivery  ServiceType = "delivery"
)

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ride represents a ride request and its settlement state.
type Ride struct {
	ID               string
	RequesterID      string
	DriverID         string // empty until claimed
	ServiceType      ServiceType
	Pickup           Point
	Dropoff          Point
	DistanceKm       float64
	SurgeMultiplier  float64 // 1.0 = no surge
	Status           RideStatus
	Fare             int64
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	PaymentReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasDriver reports whether a driver has been bound to the ride.
func (r *Ride) HasDriver() bool {
	return r.DriverID != ""
}
