package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/observability"
	"swiftdrop/internal/redis"
	"swiftdrop/internal/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100

	profileUpdateAttempts = 3
	profileRetryBackoff   = 20 * time.Millisecond
)

// RideService owns the ride lifecycle: requests, driver claims and status
// transitions.
type RideService struct {
	rides   repository.RideRepository
	drivers repository.DriverRepository
	tx      repository.Transactor
	cache   redis.RideCacheInterface
	notify  *NotificationService
	fares   FareCalculator
	logger  *slog.Logger
}

// NewRideService creates a new RideService. cache may be nil.
func NewRideService(
	rides repository.RideRepository,
	drivers repository.DriverRepository,
	tx repository.Transactor,
	cache redis.RideCacheInterface,
	notify *NotificationService,
	fares FareCalculator,
	logger *slog.Logger,
) *RideService {
	return &RideService{
		rides:   rides,
		drivers: drivers,
		tx:      tx,
		cache:   cache,
		notify:  notify,
		fares:   fares,
		logger:  logger,
	}
}

// RequestRideRequest contains the parameters for requesting a ride.
type RequestRideRequest struct {
	RequesterID     string
	Pickup          *domain.Point
	Dropoff         *domain.Point
	ServiceType     string
	SurgeMultiplier float64 // 0 means no surge
}

// RequestRide creates a ride in the requested state.
func (s *RideService) RequestRide(ctx context.Context, req RequestRideRequest) (*domain.Ride, error) {
	if err := validateRequestRide(req); err != nil {
		return nil, err
	}

	surge := req.SurgeMultiplier
	if surge == 0 {
		surge = 1
	}

	now := time.Now().UTC()
	ride := &domain.Ride{
		ID:              uuid.NewString(),
		RequesterID:     req.RequesterID,
		ServiceType:     domain.ServiceType(req.ServiceType),
		Pickup:          *req.Pickup,
		Dropoff:         *req.Dropoff,
		DistanceKm:      HaversineKm(*req.Pickup, *req.Dropoff),
		SurgeMultiplier: surge,
		Status:          domain.RideStatusRequested,
		PaymentStatus:   domain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ride.Fare = s.fares.ForRide(ride).Total

	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "ride requested",
		slog.String("ride_id", ride.ID),
		slog.String("requester_id", ride.RequesterID),
		slog.String("service_type", string(ride.ServiceType)),
	)
	observability.RideTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	s.notify.RideStatusChanged(ctx, ride)

	return ride, nil
}

func validateRequestRide(req RequestRideRequest) error {
	if req.RequesterID == "" {
		return ErrInvalidRequesterID
	}
	if req.Pickup == nil {
		return ErrMissingPickup
	}
	if req.Dropoff == nil {
		return ErrMissingDropoff
	}
	if !isValidPoint(*req.Pickup) || !isValidPoint(*req.Dropoff) {
		return ErrInvalidLocation
	}
	switch domain.ServiceType(req.ServiceType) {
	case domain.ServiceTypePassenger, domain.ServiceTypeDelivery:
	default:
		return ErrInvalidServiceType
	}
	if req.SurgeMultiplier != 0 && req.SurgeMultiplier < 1 {
		return ErrInvalidSurge
	}
	return nil
}

func isValidPoint(p domain.Point) bool {
	return isValidLatitude(p.Lat) && isValidLongitude(p.Lng)
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}

// ClaimRide binds driverID to a requested ride. Of any number of concurrent
// claims on the same ride, at most one succeeds; the rest get
// ErrRideUnavailable.
func (s *RideService) ClaimRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	profile, err := s.drivers.GetByUserID(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("driver profile: %w", ErrNotFound)
		}
		return nil, err
	}
	if profile.IsBusy() {
		observability.ClaimsTotal.WithLabelValues("driver_busy").Inc()
		return nil, ErrDriverBusy
	}

	claimed, err := s.rides.ClaimDriver(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if _, err := s.rides.GetByID(ctx, rideID); errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		observability.ClaimsTotal.WithLabelValues("unavailable").Inc()
		return nil, ErrRideUnavailable
	}
	observability.ClaimsTotal.WithLabelValues("won").Inc()

	// The claim stands even if the profile cannot be updated.
	if err := s.markDriverOnTrip(ctx, driverID, rideID); err != nil {
		s.logger.ErrorContext(ctx, "driver profile not updated after claim",
			slog.String("ride_id", rideID),
			slog.String("driver_id", driverID),
			slog.Any("error", err),
		)
	}

	s.invalidate(ctx, rideID)
	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "ride claimed",
		slog.String("ride_id", rideID),
		slog.String("driver_id", driverID),
	)
	observability.RideTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()
	s.notify.RideStatusChanged(ctx, ride)

	return ride, nil
}

func (s *RideService) markDriverOnTrip(ctx context.Context, driverID, rideID string) error {
	var err error
	for attempt := 1; attempt <= profileUpdateAttempts; attempt++ {
		if err = s.drivers.SetStatus(ctx, driverID, domain.DriverStatusOnTrip, rideID); err == nil {
			return nil
		}
		if attempt < profileUpdateAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * profileRetryBackoff):
			}
		}
	}
	return err
}

// CancelRide cancels a ride that has not finished. Only the requester or the
// bound driver may cancel.
func (s *RideService) CancelRide(ctx context.Context, rideID string, actor domain.Actor) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if RoleFor(ride, actor.UserID) == RideRoleNone {
		return nil, ErrNotRideParty
	}
	if ride.Status.IsTerminal() {
		return nil, ErrRideTerminal
	}

	return s.transition(ctx, ride, domain.RideStatusCancelled, actor)
}

// UpdateStatus applies a role-gated status change requested by actor.
func (s *RideService) UpdateStatus(ctx context.Context, rideID string, actor domain.Actor, newStatus string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	target := domain.RideStatus(newStatus)
	if !target.IsKnown() {
		return nil, ErrInvalidStatus
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	role := RoleFor(ride, actor.UserID)
	if err := CheckTransition(role, ride.Status, target); err != nil {
		return nil, err
	}

	return s.transition(ctx, ride, target, actor)
}

// ExpireRide moves an unfinished ride to timeout or ride-uncompleted. It is
// meant for schedulers and runs as the system actor.
func (s *RideService) ExpireRide(ctx context.Context, rideID string, outcome domain.RideStatus) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if outcome != domain.RideStatusTimeout && outcome != domain.RideStatusUncompleted {
		return nil, ErrInvalidOutcome
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status.IsTerminal() {
		return nil, ErrRideTerminal
	}

	return s.transition(ctx, ride, outcome, domain.SystemActor)
}

// transition writes the new status with a compare-and-set on the old one and,
// for terminal states, frees the bound driver in the same transaction.
func (s *RideService) transition(ctx context.Context, ride *domain.Ride, to domain.RideStatus, actor domain.Actor) (*domain.Ride, error) {
	from := ride.Status

	var updated *domain.Ride
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		ok, err := stores.Rides.TransitionStatus(ctx, ride.ID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}

		if to.IsTerminal() && ride.HasDriver() {
			if _, err := stores.Drivers.Release(ctx, ride.DriverID, ride.ID); err != nil {
				return fmt.Errorf("release driver: %w", err)
			}
		}

		updated, err = stores.Rides.GetByID(ctx, ride.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, ride.ID)
	s.logger.InfoContext(ctx, "ride status changed",
		slog.String("ride_id", ride.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("actor_id", actor.UserID),
	)
	observability.RideTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.notify.RideStatusChanged(ctx, updated)

	return updated, nil
}

// GetRide returns a ride, served from cache when possible.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	if s.cache != nil {
		cached, err := s.cache.GetRide(ctx, rideID)
		if err != nil {
			s.logger.WarnContext(ctx, "ride cache read failed", slog.String("ride_id", rideID), slog.Any("error", err))
		} else if cached != nil {
			return cached, nil
		}
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetRide(ctx, ride); err != nil {
			s.logger.WarnContext(ctx, "ride cache write failed", slog.String("ride_id", rideID), slog.Any("error", err))
		}
	}
	return ride, nil
}

// ListRidesRequest filters and paginates a ride listing. Page starts at 1.
type ListRidesRequest struct {
	Status      string
	ServiceType string
	RequesterID string
	DriverID    string
	Page        int
	Limit       int
}

// RidePage is one page of a ride listing.
type RidePage struct {
	Rides      []*domain.Ride
	Total      int
	Page       int
	TotalPages int
}

// ListRides returns rides newest first.
func (s *RideService) ListRides(ctx context.Context, req ListRidesRequest) (*RidePage, error) {
	if req.Status != "" && !domain.RideStatus(req.Status).IsKnown() {
		return nil, ErrInvalidStatus
	}
	if req.ServiceType != "" {
		switch domain.ServiceType(req.ServiceType) {
		case domain.ServiceTypePassenger, domain.ServiceTypeDelivery:
		default:
			return nil, ErrInvalidServiceType
		}
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	rides, total, err := s.rides.List(ctx, repository.RideFilter{
		Status:      domain.RideStatus(req.Status),
		ServiceType: domain.ServiceType(req.ServiceType),
		RequesterID: req.RequesterID,
		DriverID:    req.DriverID,
		Offset:      (page - 1) * limit,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}

	return &RidePage{
		Rides:      rides,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (s *RideService) invalidate(ctx context.Context, rideID string) {
	invalidateRide(ctx, s.cache, s.logger, rideID)
}

func invalidateRide(ctx context.Context, cache redis.RideCacheInterface, logger *slog.Logger, rideID string) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateRide(ctx, rideID); err != nil {
		logger.WarnContext(ctx, "ride cache invalidation failed", slog.String("ride_id", rideID), slog.Any("error", err))
	}
}
