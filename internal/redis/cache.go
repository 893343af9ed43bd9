package redis

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"swiftdrop/internal/domain"
)

// DefaultRideCacheTTL bounds how stale a cached ride read may be.
const DefaultRideCacheTTL = 10 * time.Second

const rideCachePrefix = "cache:ride:"

// CacheStore handles ride caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore. A non-positive ttl selects
// DefaultRideCacheTTL.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultRideCacheTTL
	}
	return &CacheStore{client: client, ttl: ttl}
}

// CachedRide represents a cached ride entity.
type CachedRide struct {
	ID               string       `json:"id"`
	RequesterID      string       `json:"requester_id"`
	DriverID         string       `json:"driver_id,omitempty"`
	ServiceType      string       `json:"service_type"`
	Pickup           domain.Point `json:"pickup"`
	Dropoff          domain.Point `json:"dropoff"`
	DistanceKm       float64      `json:"distance_km"`
	SurgeMultiplier  float64      `json:"surge_multiplier"`
	Status           string       `json:"status"`
	Fare             int64        `json:"fare"`
	PaymentMethod    string       `json:"payment_method,omitempty"`
	PaymentStatus    string       `json:"payment_status"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func toCachedRide(r *domain.Ride) *CachedRide {
	return &CachedRide{
		ID:               r.ID,
		RequesterID:      r.RequesterID,
		DriverID:         r.DriverID,
		ServiceType:      string(r.ServiceType),
		Pickup:           r.Pickup,
		Dropoff:          r.Dropoff,
		DistanceKm:       r.DistanceKm,
		SurgeMultiplier:  r.SurgeMultiplier,
		Status:           string(r.Status),
		Fare:             r.Fare,
		PaymentMethod:    string(r.PaymentMethod),
		PaymentStatus:    string(r.PaymentStatus),
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (c *CachedRide) toDomain() *domain.Ride {
	return &domain.Ride{
		ID:               c.ID,
		RequesterID:      c.RequesterID,
		DriverID:         c.DriverID,
		ServiceType:      domain.ServiceType(c.ServiceType),
		Pickup:           c.Pickup,
		Dropoff:          c.Dropoff,
		DistanceKm:       c.DistanceKm,
		SurgeMultiplier:  c.SurgeMultiplier,
		Status:           domain.RideStatus(c.Status),
		Fare:             c.Fare,
		PaymentMethod:    domain.PaymentMethod(c.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(c.PaymentStatus),
		PaymentReference: c.PaymentReference,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// GetRide retrieves a ride from cache. A miss returns (nil, nil).
func (s *CacheStore) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	data, err := s.client.Get(ctx, rideCachePrefix+rideID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var ride CachedRide
	if err := json.Unmarshal(data, &ride); err != nil {
		return nil, err
	}
	return ride.toDomain(), nil
}

// SetRide stores a ride in cache.
func (s *CacheStore) SetRide(ctx context.Context, ride *domain.Ride) error {
	data, err := json.Marshal(toCachedRide(ride))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rideCachePrefix+ride.ID, data, s.ttl).Err()
}

// InvalidateRide removes a ride from cache.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, rideCachePrefix+rideID).Err()
}
