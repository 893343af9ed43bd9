package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/repository"
)

// DriverService handles driver profile operations.
type DriverService struct {
	driverRepo repository.DriverRepository
	logger     *slog.Logger
}

// NewDriverService creates a new DriverService.
func NewDriverService(driverRepo repository.DriverRepository, logger *slog.Logger) *DriverService {
	return &DriverService{
		driverRepo: driverRepo,
		logger:     logger,
	}
}

// CreateProfile registers userID as a driver. New profiles start offline.
func (s *DriverService) CreateProfile(ctx context.Context, userID, vehicleType string) (*domain.DriverProfile, error) {
	if userID == "" {
		return nil, ErrInvalidDriverID
	}
	switch domain.VehicleType(vehicleType) {
	case domain.VehicleTypeBike, domain.VehicleTypeCar, domain.VehicleTypeTruck, domain.VehicleTypeVan:
	default:
		return nil, ErrInvalidVehicleType
	}

	profile := &domain.DriverProfile{
		UserID:      userID,
		VehicleType: domain.VehicleType(vehicleType),
		Status:      domain.DriverStatusOffline,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.driverRepo.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrDriverProfileExists
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "driver profile created",
		slog.String("driver_id", userID),
		slog.String("vehicle_type", vehicleType),
	)
	return profile, nil
}

// GetProfile returns the profile of a driver.
func (s *DriverService) GetProfile(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	if userID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.driverRepo.GetByUserID(ctx, userID)
}

// SetAvailability switches a driver between available and offline. A driver
// on an active trip cannot change availability; the trip ending frees them.
func (s *DriverService) SetAvailability(ctx context.Context, userID, status string) (*domain.DriverProfile, error) {
	if userID == "" {
		return nil, ErrInvalidDriverID
	}
	target := domain.DriverStatus(status)
	if target != domain.DriverStatusAvailable && target != domain.DriverStatusOffline {
		return nil, ErrInvalidAvailability
	}

	profile, err := s.driverRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.IsBusy() {
		return nil, ErrDriverOnActiveRide
	}

	if err := s.driverRepo.SetStatus(ctx, userID, target, ""); err != nil {
		return nil, err
	}

	profile.Status = target
	profile.CurrentRide = ""
	profile.UpdatedAt = time.Now().UTC()

	s.logger.InfoContext(ctx, "driver availability changed",
		slog.String("driver_id", userID),
		slog.String("status", status),
	)
	return profile, nil
}

// DriverPage is one page of a driver listing.
type DriverPage struct {
	Drivers    []*domain.DriverProfile
	Total      int
	Page       int
	TotalPages int
}

// ListDrivers returns driver profiles ordered by user id, optionally
// restricted to one status.
func (s *DriverService) ListDrivers(ctx context.Context, status string, page, limit int) (*DriverPage, error) {
	switch domain.DriverStatus(status) {
	case "", domain.DriverStatusAvailable, domain.DriverStatusOnTrip, domain.DriverStatusOffline:
	default:
		return nil, ErrInvalidDriverStatus
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	drivers, total, err := s.driverRepo.List(ctx, repository.DriverFilter{
		Status: domain.DriverStatus(status),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	return &DriverPage{
		Drivers:    drivers,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}
