package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/gateway"
	"swiftdrop/internal/logging"
	"swiftdrop/internal/notify"
	"swiftdrop/internal/repository/memory"
	"swiftdrop/internal/service"
)

const (
	testPlatformID     = "platform"
	testCommission     = 20.0
	validWebhookSig    = "valid-signature"
	testRideID         = "ride-1"
	testRequesterID    = "rider-1"
	testDriverID       = "driver-1"
	testRequesterEmail = "rider@example.com"
)

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a scripted gateway.Client.
type MockGateway struct {
	mu            sync.Mutex
	verifications map[string]*gateway.Verification
	lastInit      gateway.InitializeRequest
	nextRef       int

	// Error injection
	InitializeError error
	VerifyError     error
	BlockInitialize bool // wait for the context to expire

	// Counters for verification
	InitializeCallCount int32
	VerifyCallCount     int32
}

// NewMockGateway creates a gateway with no confirmed transactions.
func NewMockGateway() *MockGateway {
	return &MockGateway{verifications: make(map[string]*gateway.Verification)}
}

// SetVerification scripts the answer for reference.
func (m *MockGateway) SetVerification(reference string, success bool, amountMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "abandoned"
	if success {
		status = "success"
	}
	m.verifications[reference] = &gateway.Verification{
		Reference:   reference,
		Success:     success,
		Status:      status,
		AmountMinor: amountMinor,
	}
}

// LastInitialize returns the last initialize request received.
func (m *MockGateway) LastInitialize() gateway.InitializeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastInit
}

func (m *MockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Initialization, error) {
	atomic.AddInt32(&m.InitializeCallCount, 1)
	if m.BlockInitialize {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.InitializeError != nil {
		return nil, m.InitializeError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastInit = req
	m.nextRef++
	ref := fmt.Sprintf("ref-%d", m.nextRef)
	return &gateway.Initialization{
		Reference:        ref,
		AuthorizationURL: "https://checkout.example.com/" + ref,
	}, nil
}

func (m *MockGateway) Verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	atomic.AddInt32(&m.VerifyCallCount, 1)
	if m.VerifyError != nil {
		return nil, m.VerifyError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.verifications[reference]; ok {
		c := *v
		return &c, nil
	}
	return &gateway.Verification{Reference: reference, Status: "abandoned"}, nil
}

type mockWebhook struct {
	Event     string `json:"event"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

func (m *MockGateway) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if signature != validWebhookSig {
		return nil, gateway.ErrInvalidSignature
	}
	var w mockWebhook
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, err
	}
	return &gateway.WebhookEvent{
		Type:        w.Event,
		Reference:   w.Reference,
		Succeeded:   w.Event == gateway.EventChargeSucceeded && w.Status == "success",
		AmountMinor: w.Amount,
	}, nil
}

func (m *MockGateway) SignatureHeader() string { return "X-Test-Signature" }

func chargeSuccessPayload(t *testing.T, reference string, amountMinor int64) []byte {
	t.Helper()
	payload, err := json.Marshal(mockWebhook{
		Event:     gateway.EventChargeSucceeded,
		Reference: reference,
		Status:    "success",
		Amount:    amountMinor,
	})
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return payload
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []notify.Event

	// Error injection
	PublishError error
}

func (m *MockPublisher) Publish(ctx context.Context, event notify.Event) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Events returns a copy of the published events.
func (m *MockPublisher) Events() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Event(nil), m.events...)
}

// CountType counts published events of the given type.
func (m *MockPublisher) CountType(eventType string) int {
	n := 0
	for _, e := range m.Events() {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-process LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string
}

func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

func (m *MockLockStore) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[name]; held {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%s", name)
	m.locks[name] = token
	return token, true, nil
}

func (m *MockLockStore) Release(ctx context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[name] != token {
		return errors.New("lock not held")
	}
	delete(m.locks, name)
	return nil
}

// ──────────────────────────────────────────────
// TEST ENGINE
// ──────────────────────────────────────────────

type testEngine struct {
	store         *memory.Store
	gateway       *MockGateway
	publisher     *MockPublisher
	locks         *MockLockStore
	notifications *service.NotificationService
	rides         *service.RideService
	drivers       *service.DriverService
	wallets       *service.WalletService
	settlement    *service.SettlementService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineWithTimeout(t, time.Second)
}

func newTestEngineWithTimeout(t *testing.T, gatewayTimeout time.Duration) *testEngine {
	t.Helper()
	logger := logging.Discard()

	e := &testEngine{
		store:     memory.NewStore(),
		gateway:   NewMockGateway(),
		publisher: &MockPublisher{},
		locks:     NewMockLockStore(),
	}
	fares := service.DefaultFareCalculator()
	e.notifications = service.NewNotificationService(e.publisher, logger)
	e.wallets = service.NewWalletService(e.store.Wallets(), e.store, service.WalletConfig{
		PlatformUserID:    testPlatformID,
		CommissionPercent: testCommission,
	}, logger)
	e.rides = service.NewRideService(e.store.Rides(), e.store.Drivers(), e.store, nil, e.notifications, fares, logger)
	e.drivers = service.NewDriverService(e.store.Drivers(), logger)
	e.settlement = service.NewSettlementService(
		e.store.Rides(), e.store, e.wallets, e.gateway, fares, e.notifications, e.locks, nil,
		service.SettlementConfig{Currency: "NGN", GatewayTimeout: gatewayTimeout},
		logger,
	)

	t.Cleanup(e.notifications.Wait)
	return e
}

// seedRide stores a 5 km ride (fare 1500) in the given status. Rides past
// requested are bound to testDriverID, who is marked on-trip unless the
// status is terminal.
func (e *testEngine) seedRide(status domain.RideStatus) *domain.Ride {
	now := time.Now().UTC()
	ride := &domain.Ride{
		ID:              testRideID,
		RequesterID:     testRequesterID,
		ServiceType:     domain.ServiceTypePassenger,
		Pickup:          domain.Point{Lat: 6.5244, Lng: 3.3792},
		Dropoff:         domain.Point{Lat: 6.5244, Lng: 3.4242},
		DistanceKm:      5,
		SurgeMultiplier: 1,
		Status:          status,
		Fare:            1500,
		PaymentStatus:   domain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	profile := &domain.DriverProfile{
		UserID:      testDriverID,
		VehicleType: domain.VehicleTypeCar,
		Status:      domain.DriverStatusAvailable,
		UpdatedAt:   now,
	}
	if status != domain.RideStatusRequested {
		ride.DriverID = testDriverID
		if !status.IsTerminal() {
			profile.Status = domain.DriverStatusOnTrip
			profile.CurrentRide = ride.ID
		}
	}

	e.store.PutRide(ride)
	e.store.PutDriver(profile)
	return ride
}

func (e *testEngine) fund(t *testing.T, owner string, amount int64) {
	t.Helper()
	if _, err := e.wallets.Fund(context.Background(), owner, amount, ""); err != nil {
		t.Fatalf("fund %s: %v", owner, err)
	}
}

func (e *testEngine) ride(t *testing.T, id string) *domain.Ride {
	t.Helper()
	ride, err := e.store.Rides().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get ride %s: %v", id, err)
	}
	return ride
}

func (e *testEngine) driver(t *testing.T, id string) *domain.DriverProfile {
	t.Helper()
	profile, err := e.store.Drivers().GetByUserID(context.Background(), id)
	if err != nil {
		t.Fatalf("get driver %s: %v", id, err)
	}
	return profile
}

// assertLedgerConsistent checks that the owner's balance equals the signed
// sum of their transactions.
func (e *testEngine) assertLedgerConsistent(t *testing.T, owner string) {
	t.Helper()
	var sum int64
	for _, txn := range e.store.Ledger(owner) {
		if txn.Amount <= 0 {
			t.Errorf("%s: non-positive transaction amount %d", owner, txn.Amount)
		}
		sum += txn.Signed()
	}
	if got := e.store.Balance(owner); got != sum {
		t.Errorf("%s: balance %d does not match ledger sum %d", owner, got, sum)
	}
}

func requester() domain.Actor {
	return domain.Actor{UserID: testRequesterID, Role: domain.RoleRider, Email: testRequesterEmail}
}

func driverActor() domain.Actor {
	return domain.Actor{UserID: testDriverID, Role: domain.RoleDriver}
}

func stranger() domain.Actor {
	return domain.Actor{UserID: "someone-else", Role: domain.RoleRider, Email: "x@example.com"}
}
