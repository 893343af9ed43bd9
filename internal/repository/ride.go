package repository

import (
	"context"
	"time"

	"swiftdrop/internal/domain"
)

// RideFilter narrows a ride listing. Zero values are ignored.
type RideFilter struct {
	Status        domain.RideStatus
	ServiceType   domain.ServiceType
	RequesterID   string
	DriverID      string
	PaymentStatus domain.PaymentStatus
	UpdatedBefore time.Time
	Offset        int
	Limit         int
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetByIDForUpdate retrieves a ride and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error)

	// GetByPaymentReferenceForUpdate retrieves the ride carrying the gateway
	// reference and locks its row until the surrounding transaction ends.
	GetByPaymentReferenceForUpdate(ctx context.Context, reference string) (*domain.Ride, error)

	// List returns a page of rides matching the filter and the total match count.
	List(ctx context.Context, filter RideFilter) ([]*domain.Ride, int, error)

	// ClaimDriver binds driverID and moves the ride to accepted, but only if
	// the ride is still requested and unbound. The check and the write are a
	// single atomic statement. Returns false when the precondition failed.
	ClaimDriver(ctx context.Context, rideID, driverID string) (bool, error)

	// TransitionStatus moves a ride from one status to another. Returns false
	// when the ride is no longer in the expected status.
	TransitionStatus(ctx context.Context, rideID string, from, to domain.RideStatus) (bool, error)

	// UpdatePayment writes the fare and payment fields of the ride.
	UpdatePayment(ctx context.Context, ride *domain.Ride) error
}
