package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// Create adds a new driver profile.
func (r *DriverRepository) Create(ctx context.Context, profile *domain.DriverProfile) error {
	query := `INSERT INTO driver_profiles (user_id, vehicle_type, status, current_ride, updated_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.ExecContext(ctx, query,
		profile.UserID, profile.VehicleType, profile.Status, nullString(profile.CurrentRide), profile.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return err
}

// GetByUserID retrieves a driver profile by user ID.
func (r *DriverRepository) GetByUserID(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	query := `SELECT user_id, vehicle_type, status, current_ride, updated_at FROM driver_profiles WHERE user_id = $1`

	var (
		profile     domain.DriverProfile
		currentRide sql.NullString
	)
	err := r.q.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.VehicleType,
		&profile.Status,
		&currentRide,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	profile.CurrentRide = currentRide.String

	return &profile, nil
}

// List returns driver profiles ordered by user id.
func (r *DriverRepository) List(ctx context.Context, filter repository.DriverFilter) ([]*domain.DriverProfile, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT user_id, vehicle_type, status, current_ride, updated_at, COUNT(*) OVER()
		FROM driver_profiles
		WHERE ($1 = '' OR status = $1)
		ORDER BY user_id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.q.QueryContext(ctx, query, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		profiles []*domain.DriverProfile
		total    int
	)
	for rows.Next() {
		var (
			profile     domain.DriverProfile
			currentRide sql.NullString
		)
		if err := rows.Scan(
			&profile.UserID,
			&profile.VehicleType,
			&profile.Status,
			&currentRide,
			&profile.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		profile.CurrentRide = currentRide.String
		profiles = append(profiles, &profile)
	}
	return profiles, total, rows.Err()
}

// SetStatus updates the status and current ride of a driver.
func (r *DriverRepository) SetStatus(ctx context.Context, userID string, status domain.DriverStatus, currentRide string) error {
	query := `UPDATE driver_profiles SET status = $1, current_ride = $2, updated_at = $3 WHERE user_id = $4`
	result, err := r.q.ExecContext(ctx, query, status, nullString(currentRide), time.Now().UTC(), userID)
	if err != nil {
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

// Release frees the driver if rideID is still its current ride.
func (r *DriverRepository) Release(ctx context.Context, userID, rideID string) (bool, error) {
	query := `
		UPDATE driver_profiles
		SET status = $1, current_ride = NULL, updated_at = $2
		WHERE user_id = $3 AND current_ride = $4
	`
	result, err := r.q.ExecContext(ctx, query, domain.DriverStatusAvailable, time.Now().UTC(), userID, rideID)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}
