package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/service"
)

func lagosPickup() *domain.Point  { return &domain.Point{Lat: 6.5244, Lng: 3.3792} }
func lagosDropoff() *domain.Point { return &domain.Point{Lat: 6.4281, Lng: 3.4219} }

func putAvailableDriver(e *testEngine, id string) {
	e.store.PutDriver(&domain.DriverProfile{
		UserID:      id,
		VehicleType: domain.VehicleTypeCar,
		Status:      domain.DriverStatusAvailable,
		UpdatedAt:   time.Now().UTC(),
	})
}

// ──────────────────────────────────────────────
// 1. RIDE REQUESTS
// ──────────────────────────────────────────────

func TestRequestRide_ValidInput_Succeeds(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ride, err := e.rides.RequestRide(context.Background(), service.RequestRideRequest{
		RequesterID: testRequesterID,
		Pickup:      lagosPickup(),
		Dropoff:     lagosDropoff(),
		ServiceType: "passenger",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if ride.ID == "" {
		t.Error("expected ride ID to be set")
	}
	if ride.Status != domain.RideStatusRequested {
		t.Errorf("expected status requested, got %s", ride.Status)
	}
	if ride.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected payment pending, got %s", ride.PaymentStatus)
	}
	if ride.SurgeMultiplier != 1 {
		t.Errorf("expected default surge 1, got %v", ride.SurgeMultiplier)
	}
	if ride.DriverID != "" {
		t.Errorf("expected no driver, got %s", ride.DriverID)
	}

	wantFare := service.DefaultFareCalculator().Calculate(ride.DistanceKm, 1).Total
	if ride.Fare != wantFare {
		t.Errorf("expected fare %d, got %d", wantFare, ride.Fare)
	}
	if ride.DistanceKm <= 0 {
		t.Errorf("expected positive distance, got %f", ride.DistanceKm)
	}

	stored := e.ride(t, ride.ID)
	if stored.Status != domain.RideStatusRequested {
		t.Errorf("expected stored ride to be requested, got %s", stored.Status)
	}

	e.notifications.Wait()
	if got := e.publisher.CountType(string(domain.RideStatusRequested)); got != 1 {
		t.Errorf("expected 1 requested notification, got %d", got)
	}
}

func TestRequestRide_InvalidInput_Rejected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		req     service.RequestRideRequest
		wantErr error
	}{
		{
			name:    "missing requester",
			req:     service.RequestRideRequest{Pickup: lagosPickup(), Dropoff: lagosDropoff(), ServiceType: "passenger"},
			wantErr: service.ErrInvalidRequesterID,
		},
		{
			name:    "missing pickup",
			req:     service.RequestRideRequest{RequesterID: testRequesterID, Dropoff: lagosDropoff(), ServiceType: "passenger"},
			wantErr: service.ErrMissingPickup,
		},
		{
			name:    "missing dropoff",
			req:     service.RequestRideRequest{RequesterID: testRequesterID, Pickup: lagosPickup(), ServiceType: "passenger"},
			wantErr: service.ErrMissingDropoff,
		},
		{
			name: "latitude out of range",
			req: service.RequestRideRequest{
				RequesterID: testRequesterID,
				Pickup:      &domain.Point{Lat: 91, Lng: 3.3792},
				Dropoff:     lagosDropoff(),
				ServiceType: "passenger",
			},
			wantErr: service.ErrInvalidLocation,
		},
		{
			name: "longitude out of range",
			req: service.RequestRideRequest{
				RequesterID: testRequesterID,
				Pickup:      lagosPickup(),
				Dropoff:     &domain.Point{Lat: 6.4, Lng: -181},
				ServiceType: "passenger",
			},
			wantErr: service.ErrInvalidLocation,
		},
		{
			name:    "unknown service type",
			req:     service.RequestRideRequest{RequesterID: testRequesterID, Pickup: lagosPickup(), Dropoff: lagosDropoff(), ServiceType: "helicopter"},
			wantErr: service.ErrInvalidServiceType,
		},
		{
			name: "surge below one",
			req: service.RequestRideRequest{
				RequesterID:     testRequesterID,
				Pickup:          lagosPickup(),
				Dropoff:         lagosDropoff(),
				ServiceType:     "delivery",
				SurgeMultiplier: 0.5,
			},
			wantErr: service.ErrInvalidSurge,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(t)
			_, err := e.rides.RequestRide(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got: %v", tc.wantErr, err)
			}
			if !errors.Is(err, service.ErrValidation) {
				t.Errorf("expected a validation error, got: %v", err)
			}
		})
	}
}

func TestRequestRide_SurgeAppliedToFare(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ride, err := e.rides.RequestRide(context.Background(), service.RequestRideRequest{
		RequesterID:     testRequesterID,
		Pickup:          lagosPickup(),
		Dropoff:         lagosDropoff(),
		ServiceType:     "delivery",
		SurgeMultiplier: 1.5,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	want := service.DefaultFareCalculator().Calculate(ride.DistanceKm, 1.5).Total
	if ride.Fare != want {
		t.Errorf("expected surged fare %d, got %d", want, ride.Fare)
	}
}

// ──────────────────────────────────────────────
// 2. CLAIMS
// ──────────────────────────────────────────────

func TestClaimRide_BindsDriver(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusRequested)

	ride, err := e.rides.ClaimRide(context.Background(), testRideID, testDriverID)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if ride.Status != domain.RideStatusAccepted {
		t.Errorf("expected accepted, got %s", ride.Status)
	}
	if ride.DriverID != testDriverID {
		t.Errorf("expected driver %s, got %s", testDriverID, ride.DriverID)
	}

	profile := e.driver(t, testDriverID)
	if profile.Status != domain.DriverStatusOnTrip || profile.CurrentRide != testRideID {
		t.Errorf("expected driver on trip for %s, got %s/%s", testRideID, profile.Status, profile.CurrentRide)
	}
}

func TestClaimRide_ConcurrentClaims_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusRequested)

	const numDrivers = 20
	for i := 0; i < numDrivers; i++ {
		putAvailableDriver(e, fmt.Sprintf("claimer-%d", i))
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successCount int
		winner       string
	)
	start := make(chan struct{})
	for i := 0; i < numDrivers; i++ {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			<-start
			_, err := e.rides.ClaimRide(context.Background(), testRideID, driverID)
			if err == nil {
				mu.Lock()
				successCount++
				winner = driverID
				mu.Unlock()
				return
			}
			if !errors.Is(err, service.ErrRideUnavailable) {
				t.Errorf("expected ErrRideUnavailable for loser, got: %v", err)
			}
		}(fmt.Sprintf("claimer-%d", i))
	}
	close(start)
	wg.Wait()

	if successCount != 1 {
		t.Fatalf("expected exactly 1 successful claim, got %d", successCount)
	}

	ride := e.ride(t, testRideID)
	if ride.DriverID != winner {
		t.Errorf("expected ride bound to winner %s, got %s", winner, ride.DriverID)
	}
	if ride.Status != domain.RideStatusAccepted {
		t.Errorf("expected accepted, got %s", ride.Status)
	}

	for i := 0; i < numDrivers; i++ {
		id := fmt.Sprintf("claimer-%d", i)
		if id == winner {
			continue
		}
		if p := e.driver(t, id); p.Status != domain.DriverStatusAvailable {
			t.Errorf("losing driver %s should stay available, got %s", id, p.Status)
		}
	}
}

func TestClaimRide_BusyDriver_DoesNotTouchRide(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusRequested)
	e.store.PutDriver(&domain.DriverProfile{
		UserID:      testDriverID,
		VehicleType: domain.VehicleTypeCar,
		Status:      domain.DriverStatusOnTrip,
		CurrentRide: "other-ride",
	})

	_, err := e.rides.ClaimRide(context.Background(), testRideID, testDriverID)
	if !errors.Is(err, service.ErrDriverBusy) {
		t.Fatalf("expected ErrDriverBusy, got: %v", err)
	}
	if got := atomic.LoadInt32(&e.store.ClaimCallCount); got != 0 {
		t.Errorf("expected no claim attempt, got %d", got)
	}
	if ride := e.ride(t, testRideID); ride.Status != domain.RideStatusRequested || ride.DriverID != "" {
		t.Errorf("expected ride untouched, got %s/%s", ride.Status, ride.DriverID)
	}
}

func TestClaimRide_AlreadyClaimed_Unavailable(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusAccepted)
	putAvailableDriver(e, "driver-2")

	_, err := e.rides.ClaimRide(context.Background(), testRideID, "driver-2")
	if !errors.Is(err, service.ErrRideUnavailable) {
		t.Fatalf("expected ErrRideUnavailable, got: %v", err)
	}
	if ride := e.ride(t, testRideID); ride.DriverID != testDriverID {
		t.Errorf("expected first driver to keep the ride, got %s", ride.DriverID)
	}
}

func TestClaimRide_NotFound(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	putAvailableDriver(e, testDriverID)

	_, err := e.rides.ClaimRide(context.Background(), "missing", testDriverID)
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestClaimRide_NoDriverProfile(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusRequested)

	_, err := e.rides.ClaimRide(context.Background(), testRideID, "ghost")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if got := atomic.LoadInt32(&e.store.ClaimCallCount); got != 0 {
		t.Errorf("expected no claim attempt, got %d", got)
	}
}

func TestClaimRide_ProfileUpdateFails_ClaimStands(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusRequested)
	e.store.SetStatusError = errors.New("profile store down")

	ride, err := e.rides.ClaimRide(context.Background(), testRideID, testDriverID)
	if err != nil {
		t.Fatalf("expected claim to succeed, got: %v", err)
	}
	if ride.DriverID != testDriverID {
		t.Errorf("expected driver bound, got %s", ride.DriverID)
	}
	if got := atomic.LoadInt32(&e.store.SetStatusCallCount); got != 3 {
		t.Errorf("expected 3 profile update attempts, got %d", got)
	}
}

// ──────────────────────────────────────────────
// 3. STATUS CHANGES
// ──────────────────────────────────────────────

func TestCancelRide_ByRequester_ReleasesDriver(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusAccepted)

	ride, err := e.rides.CancelRide(context.Background(), testRideID, requester())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if ride.Status != domain.RideStatusCancelled {
		t.Errorf("expected cancelled, got %s", ride.Status)
	}

	profile := e.driver(t, testDriverID)
	if profile.Status != domain.DriverStatusAvailable || profile.CurrentRide != "" {
		t.Errorf("expected driver released, got %s/%q", profile.Status, profile.CurrentRide)
	}
}

func TestCancelRide_ByStranger_Rejected(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusAccepted)

	_, err := e.rides.CancelRide(context.Background(), testRideID, stranger())
	if !errors.Is(err, service.ErrNotRideParty) {
		t.Fatalf("expected ErrNotRideParty, got: %v", err)
	}
	if ride := e.ride(t, testRideID); ride.Status != domain.RideStatusAccepted {
		t.Errorf("expected ride untouched, got %s", ride.Status)
	}
}

func TestCancelRide_Terminal_Rejected(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.RideStatus{
		domain.RideStatusCompleted,
		domain.RideStatusCancelled,
		domain.RideStatusTimeout,
		domain.RideStatusUncompleted,
	} {
		status := status
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(t)
			e.seedRide(status)

			_, err := e.rides.CancelRide(context.Background(), testRideID, requester())
			if !errors.Is(err, service.ErrRideTerminal) {
				t.Fatalf("expected ErrRideTerminal, got: %v", err)
			}
		})
	}
}

func TestUpdateStatus_DriverProgressesTrip(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusAccepted)
	ctx := context.Background()

	steps := []domain.RideStatus{
		domain.RideStatusDriverArrived,
		domain.RideStatusInProgress,
		domain.RideStatusCompleted,
	}
	for _, next := range steps {
		ride, err := e.rides.UpdateStatus(ctx, testRideID, driverActor(), string(next))
		if err != nil {
			t.Fatalf("move to %s: %v", next, err)
		}
		if ride.Status != next {
			t.Fatalf("expected %s, got %s", next, ride.Status)
		}
	}

	if p := e.driver(t, testDriverID); p.Status != domain.DriverStatusAvailable {
		t.Errorf("expected driver released on completion, got %s", p.Status)
	}
}

func TestUpdateStatus_RoleGating(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		current domain.RideStatus
		actor   domain.Actor
		target  string
		wantErr error
	}{
		{"requester cannot start trip", domain.RideStatusAccepted, requester(), "in_progress", service.ErrStatusNotAllowed},
		{"stranger cannot touch ride", domain.RideStatusAccepted, stranger(), "cancelled", service.ErrNotRideParty},
		{"unknown status", domain.RideStatusAccepted, driverActor(), "teleported", service.ErrInvalidStatus},
		{"driver cannot skip to completed", domain.RideStatusAccepted, driverActor(), "completed", service.ErrInvalidTransition},
		{"completed ride is final", domain.RideStatusCompleted, driverActor(), "cancelled", service.ErrRideTerminal},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(t)
			e.seedRide(tc.current)

			_, err := e.rides.UpdateStatus(context.Background(), testRideID, tc.actor, tc.target)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got: %v", tc.wantErr, err)
			}
			if ride := e.ride(t, testRideID); ride.Status != tc.current {
				t.Errorf("expected status to stay %s, got %s", tc.current, ride.Status)
			}
		})
	}
}

func TestUpdateStatus_CompletedNotificationWaitsForPayment(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusInProgress)
	e.fund(t, testRequesterID, 5000)
	ctx := context.Background()

	if _, err := e.rides.UpdateStatus(ctx, testRideID, driverActor(), "completed"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	e.notifications.Wait()
	if got := e.publisher.CountType(string(domain.RideStatusCompleted)); got != 0 {
		t.Fatalf("expected no completion notice before payment, got %d", got)
	}

	if _, err := e.settlement.PayForRide(ctx, requester(), testRideID, "wallet"); err != nil {
		t.Fatalf("pay: %v", err)
	}
	e.notifications.Wait()
	if got := e.publisher.CountType(string(domain.RideStatusCompleted)); got != 1 {
		t.Errorf("expected 1 completion notice after payment, got %d", got)
	}
	if got := e.publisher.CountType(service.NotificationPaymentPaid); got != 2 {
		t.Errorf("expected payment notices for both parties, got %d", got)
	}
}

func TestExpireRide(t *testing.T) {
	t.Parallel()

	t.Run("open ride times out", func(t *testing.T) {
		t.Parallel()

		e := newTestEngine(t)
		e.seedRide(domain.RideStatusRequested)

		ride, err := e.rides.ExpireRide(context.Background(), testRideID, domain.RideStatusTimeout)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if ride.Status != domain.RideStatusTimeout {
			t.Errorf("expected timeout, got %s", ride.Status)
		}
	})

	t.Run("accepted ride left uncompleted releases driver", func(t *testing.T) {
		t.Parallel()

		e := newTestEngine(t)
		e.seedRide(domain.RideStatusAccepted)

		ride, err := e.rides.ExpireRide(context.Background(), testRideID, domain.RideStatusUncompleted)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if ride.Status != domain.RideStatusUncompleted {
			t.Errorf("expected ride-uncompleted, got %s", ride.Status)
		}
		if p := e.driver(t, testDriverID); p.Status != domain.DriverStatusAvailable {
			t.Errorf("expected driver released, got %s", p.Status)
		}
	})

	t.Run("outcome must be an expiry state", func(t *testing.T) {
		t.Parallel()

		e := newTestEngine(t)
		e.seedRide(domain.RideStatusRequested)

		_, err := e.rides.ExpireRide(context.Background(), testRideID, domain.RideStatusCompleted)
		if !errors.Is(err, service.ErrInvalidOutcome) {
			t.Fatalf("expected ErrInvalidOutcome, got: %v", err)
		}
	})

	t.Run("finished ride cannot expire", func(t *testing.T) {
		t.Parallel()

		e := newTestEngine(t)
		e.seedRide(domain.RideStatusCompleted)

		_, err := e.rides.ExpireRide(context.Background(), testRideID, domain.RideStatusTimeout)
		if !errors.Is(err, service.ErrRideTerminal) {
			t.Fatalf("expected ErrRideTerminal, got: %v", err)
		}
	})
}

// ──────────────────────────────────────────────
// 4. READS
// ──────────────────────────────────────────────

func TestGetRide(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	e.seedRide(domain.RideStatusRequested)
	ctx := context.Background()

	ride, err := e.rides.GetRide(ctx, testRideID)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if ride.ID != testRideID {
		t.Errorf("expected %s, got %s", testRideID, ride.ID)
	}

	if _, err := e.rides.GetRide(ctx, "missing"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if _, err := e.rides.GetRide(ctx, ""); !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
}

func TestListRides_Pagination(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		requesterID := testRequesterID
		if i%5 == 0 {
			requesterID = "rider-2"
		}
		if _, err := e.rides.RequestRide(ctx, service.RequestRideRequest{
			RequesterID: requesterID,
			Pickup:      lagosPickup(),
			Dropoff:     lagosDropoff(),
			ServiceType: "passenger",
		}); err != nil {
			t.Fatalf("request ride %d: %v", i, err)
		}
	}

	page, err := e.rides.ListRides(ctx, service.ListRidesRequest{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 25 || page.TotalPages != 3 || page.Page != 3 {
		t.Errorf("unexpected page metadata: total=%d pages=%d page=%d", page.Total, page.TotalPages, page.Page)
	}
	if len(page.Rides) != 5 {
		t.Errorf("expected 5 rides on last page, got %d", len(page.Rides))
	}

	page, err = e.rides.ListRides(ctx, service.ListRidesRequest{RequesterID: "rider-2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("expected 5 rides for rider-2, got %d", page.Total)
	}
	for _, r := range page.Rides {
		if r.RequesterID != "rider-2" {
			t.Errorf("unexpected requester %s in filtered list", r.RequesterID)
		}
	}

	page, err = e.rides.ListRides(ctx, service.ListRidesRequest{Page: 9})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Rides) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(page.Rides))
	}

	if _, err := e.rides.ListRides(ctx, service.ListRidesRequest{Status: "flying"}); !errors.Is(err, service.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got: %v", err)
	}
}
