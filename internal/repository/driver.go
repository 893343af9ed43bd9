package repository

import (
	"context"

	"swiftdrop/internal/domain"
)

// DriverFilter narrows a driver listing.
type DriverFilter struct {
	Status domain.DriverStatus
	Offset int
	Limit  int
}

// DriverRepository defines the persistence operations for driver profiles.
type DriverRepository interface {
	// Create adds a new driver profile. Returns ErrAlreadyExists for a
	// duplicate user.
	Create(ctx context.Context, profile *domain.DriverProfile) error

	// GetByUserID retrieves the profile of a driver.
	GetByUserID(ctx context.Context, userID string) (*domain.DriverProfile, error)

	// List returns matching profiles ordered by user id, and the total match count.
	List(ctx context.Context, filter DriverFilter) ([]*domain.DriverProfile, int, error)

	// SetStatus overwrites status and current ride of a driver.
	SetStatus(ctx context.Context, userID string, status domain.DriverStatus, currentRide string) error

	// Release marks the driver available, but only while rideID is still its
	// current ride. Returns false when nothing was released.
	Release(ctx context.Context, userID, rideID string) (bool, error)
}
