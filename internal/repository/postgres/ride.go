package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/repository"
)

const rideColumns = `id, requester_id, driver_id, service_type, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	distance_km, surge_multiplier, status, fare, payment_method, payment_status, payment_reference, created_at, updated_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	surgeMultiplier := ride.SurgeMultiplier
	if surgeMultiplier < 1.0 {
		surgeMultiplier = 1.0
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RequesterID,
		nullString(ride.DriverID),
		ride.ServiceType,
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Dropoff.Lat,
		ride.Dropoff.Lng,
		ride.DistanceKm,
		surgeMultiplier,
		ride.Status,
		ride.Fare,
		nullString(string(ride.PaymentMethod)),
		ride.PaymentStatus,
		nullString(ride.PaymentReference),
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a ride by ID and locks the row.
func (r *RideRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, id)
}

// GetByPaymentReferenceForUpdate retrieves a ride by gateway reference and locks the row.
func (r *RideRepository) GetByPaymentReferenceForUpdate(ctx context.Context, reference string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE payment_reference = $1 FOR UPDATE`, reference)
}

func (r *RideRepository) getOne(ctx context.Context, query string, arg string) (*domain.Ride, error) {
	ride, err := scanRide(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// List returns a page of rides, newest first, with the total match count.
func (r *RideRepository) List(ctx context.Context, filter repository.RideFilter) ([]*domain.Ride, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.ServiceType != "" {
		add("service_type = $%d", filter.ServiceType)
	}
	if filter.RequesterID != "" {
		add("requester_id = $%d", filter.RequesterID)
	}
	if filter.DriverID != "" {
		add("driver_id = $%d", filter.DriverID)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	if !filter.UpdatedBefore.IsZero() {
		add("updated_at < $%d", filter.UpdatedBefore)
	}

	query := `SELECT ` + rideColumns + `, COUNT(*) OVER() FROM rides`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		rides []*domain.Ride
		total int
	)
	for rows.Next() {
		ride, err := scanRide(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		rides = append(rides, ride)
	}
	return rides, total, rows.Err()
}

// ClaimDriver binds the driver with a single conditional UPDATE.
func (r *RideRepository) ClaimDriver(ctx context.Context, rideID, driverID string) (bool, error) {
	query := `
		UPDATE rides
		SET driver_id = $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND driver_id IS NULL
	`
	result, err := r.q.ExecContext(ctx, query,
		driverID, domain.RideStatusAccepted, time.Now().UTC(), rideID, domain.RideStatusRequested)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// TransitionStatus performs a compare-and-set on the ride status.
func (r *RideRepository) TransitionStatus(ctx context.Context, rideID string, from, to domain.RideStatus) (bool, error) {
	query := `UPDATE rides SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.q.ExecContext(ctx, query, to, time.Now().UTC(), rideID, from)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// UpdatePayment writes the settlement fields of a ride.
func (r *RideRepository) UpdatePayment(ctx context.Context, ride *domain.Ride) error {
	query := `
		UPDATE rides
		SET fare = $1, payment_method = $2, payment_status = $3, payment_reference = $4, updated_at = $5
		WHERE id = $6
	`
	ride.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		ride.Fare,
		nullString(string(ride.PaymentMethod)),
		ride.PaymentStatus,
		nullString(ride.PaymentReference),
		ride.UpdatedAt,
		ride.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanRide(row rowScanner, extra ...any) (*domain.Ride, error) {
	var (
		ride          domain.Ride
		driverID      sql.NullString
		paymentMethod sql.NullString
		reference     sql.NullString
	)
	dest := []any{
		&ride.ID,
		&ride.RequesterID,
		&driverID,
		&ride.ServiceType,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&ride.Dropoff.Lat,
		&ride.Dropoff.Lng,
		&ride.DistanceKm,
		&ride.SurgeMultiplier,
		&ride.Status,
		&ride.Fare,
		&paymentMethod,
		&ride.PaymentStatus,
		&reference,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.PaymentMethod = domain.PaymentMethod(paymentMethod.String)
	ride.PaymentReference = reference.String
	return &ride, nil
}
