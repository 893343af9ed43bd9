package app_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"swiftdrop/internal/app"
	"swiftdrop/internal/config"
	"swiftdrop/internal/domain"
	"swiftdrop/internal/handler"
	"swiftdrop/internal/logging"
	"swiftdrop/internal/middleware"
)

const testJWTSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func memoryConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Backend: "memory"},
		Notify:  config.NotifyConfig{Backend: "log"},
		Auth:    config.AuthConfig{JWTSecret: testJWTSecret},
		Settlement: config.SettlementConfig{
			CommissionPercent: 20,
			PlatformUserID:    "platform",
			BaseFare:          500,
			PricePerKm:        200,
			Currency:          "NGN",
		},
		Gateway: config.GatewayConfig{
			Provider:          "paystack",
			Timeout:           time.Second,
			PaystackSecretKey: "sk_test",
			PaystackBaseURL:   "http://127.0.0.1:0",
		},
	}
}

type testServer struct {
	t        *testing.T
	router   *gin.Engine
	verifier *middleware.TokenVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := memoryConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	logger := logging.Discard()

	engine, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(engine.Close)

	verifier := middleware.NewTokenVerifier(testJWTSecret, "")
	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(engine.Rides),
		DriverHandler:  handler.NewDriverHandler(engine.Drivers),
		WalletHandler:  handler.NewWalletHandler(engine.Wallets),
		PaymentHandler: handler.NewPaymentHandler(engine.Settlement, engine.Gateway.SignatureHeader()),
		Verifier:       verifier,
		Logger:         logger,
	})
	return &testServer{t: t, router: router, verifier: verifier}
}

func (s *testServer) token(userID string, role domain.Role) string {
	s.t.Helper()
	token, err := s.verifier.Sign(userID, userID+"@example.com", role, time.Hour)
	if err != nil {
		s.t.Fatalf("sign: %v", err)
	}
	return token
}

func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode response: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w.Code
}

func TestRouter_RideToWalletSettlement(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rider := s.token("rider-1", domain.RoleRider)
	driver := s.token("driver-1", domain.RoleDriver)

	if code := s.do(http.MethodPost, "/v1/drivers/profile", driver, handler.CreateProfileRequest{VehicleType: "car"}, nil); code != http.StatusCreated {
		t.Fatalf("create profile: expected 201, got %d", code)
	}
	if code := s.do(http.MethodPut, "/v1/drivers/availability", driver, handler.AvailabilityRequest{Status: "available"}, nil); code != http.StatusOK {
		t.Fatalf("availability: expected 200, got %d", code)
	}

	var ride handler.RideResponse
	code := s.do(http.MethodPost, "/v1/rides", rider, handler.CreateRideRequest{
		Pickup:      &domain.Point{Lat: 6.5244, Lng: 3.3792},
		Dropoff:     &domain.Point{Lat: 6.4281, Lng: 3.4219},
		ServiceType: "passenger",
	}, &ride)
	if code != http.StatusCreated {
		t.Fatalf("create ride: expected 201, got %d", code)
	}
	if ride.Status != "requested" || ride.Fare <= 0 {
		t.Fatalf("unexpected ride: %+v", ride)
	}
	ridePath := "/v1/rides/" + ride.ID

	if code := s.do(http.MethodPut, ridePath+"/accept", rider, nil, nil); code != http.StatusForbidden {
		t.Errorf("rider accepting: expected 403, got %d", code)
	}
	if code := s.do(http.MethodPut, ridePath+"/accept", driver, nil, &ride); code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", code)
	}
	if ride.DriverID != "driver-1" || ride.Status != "accepted" {
		t.Fatalf("unexpected accepted ride: %+v", ride)
	}

	for _, status := range []string{"in_progress", "completed"} {
		if code := s.do(http.MethodPut, ridePath+"/status", driver, handler.UpdateStatusRequest{Status: status}, &ride); code != http.StatusOK {
			t.Fatalf("status %s: expected 200, got %d", status, code)
		}
	}

	if code := s.do(http.MethodPost, "/v1/wallets/fund", rider, handler.AmountRequest{Amount: 10000}, nil); code != http.StatusOK {
		t.Fatalf("fund: expected 200, got %d", code)
	}

	var payment handler.PaymentResponse
	if code := s.do(http.MethodPost, ridePath+"/payment", rider, handler.PayRequest{PaymentMethod: "wallet"}, &payment); code != http.StatusOK {
		t.Fatalf("pay: expected 200, got %d", code)
	}
	if payment.Ride.PaymentStatus != "paid" || payment.Distribution == nil {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if payment.Distribution.PlatformCut+payment.Distribution.DriverEarning != ride.Fare {
		t.Errorf("distribution %+v does not add up to fare %d", payment.Distribution, ride.Fare)
	}

	if code := s.do(http.MethodPost, ridePath+"/payment", rider, handler.PayRequest{PaymentMethod: "wallet"}, nil); code != http.StatusConflict {
		t.Errorf("second payment: expected 409, got %d", code)
	}

	var wallet handler.WalletResponse
	if code := s.do(http.MethodGet, "/v1/wallets", driver, nil, &wallet); code != http.StatusOK {
		t.Fatalf("driver wallet: expected 200, got %d", code)
	}
	if wallet.Balance != payment.Distribution.DriverEarning {
		t.Errorf("expected driver balance %d, got %d", payment.Distribution.DriverEarning, wallet.Balance)
	}
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	if code := s.do(http.MethodGet, "/v1/rides", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
	if code := s.do(http.MethodGet, "/health", "", nil, nil); code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", code)
	}
}

func TestRouter_WebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook",
		bytes.NewReader([]byte(`{"event":"charge.success","data":{"reference":"ref-1","status":"success"}}`)))
	req.Header.Set("x-paystack-signature", "deadbeef")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRouter_StrangerCannotReadRide(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rider := s.token("rider-1", domain.RoleRider)

	var ride handler.RideResponse
	if code := s.do(http.MethodPost, "/v1/rides", rider, handler.CreateRideRequest{
		Pickup:      &domain.Point{Lat: 6.5244, Lng: 3.3792},
		Dropoff:     &domain.Point{Lat: 6.4281, Lng: 3.4219},
		ServiceType: "delivery",
	}, &ride); code != http.StatusCreated {
		t.Fatalf("create ride: expected 201, got %d", code)
	}

	other := s.token("rider-2", domain.RoleRider)
	if code := s.do(http.MethodGet, "/v1/rides/"+ride.ID, other, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
	if code := s.do(http.MethodGet, "/v1/rides/"+ride.ID, rider, nil, nil); code != http.StatusOK {
		t.Errorf("expected 200 for requester, got %d", code)
	}
}

func TestRouter_AdminDriverDirectoryAndWalletDelete(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	admin := s.token("admin-1", domain.RoleAdmin)
	rider := s.token("rider-1", domain.RoleRider)
	for _, id := range []string{"driver-2", "driver-1"} {
		if code := s.do(http.MethodPost, "/v1/drivers/profile", s.token(id, domain.RoleDriver), handler.CreateProfileRequest{VehicleType: "bike"}, nil); code != http.StatusCreated {
			t.Fatalf("create profile %s: expected 201, got %d", id, code)
		}
	}

	if code := s.do(http.MethodGet, "/v1/drivers", rider, nil, nil); code != http.StatusForbidden {
		t.Errorf("rider listing drivers: expected 403, got %d", code)
	}
	var list handler.ListDriversResponse
	if code := s.do(http.MethodGet, "/v1/drivers?status=offline", admin, nil, &list); code != http.StatusOK {
		t.Fatalf("list drivers: expected 200, got %d", code)
	}
	if list.Total != 2 || len(list.Drivers) != 2 || list.Drivers[0].UserID != "driver-1" {
		t.Errorf("unexpected listing: %+v", list)
	}
	if code := s.do(http.MethodGet, "/v1/drivers?status=asleep", admin, nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad status filter: expected 400, got %d", code)
	}

	var profile handler.DriverResponse
	if code := s.do(http.MethodGet, "/v1/drivers/driver-2", admin, nil, &profile); code != http.StatusOK {
		t.Fatalf("get driver: expected 200, got %d", code)
	}
	if profile.UserID != "driver-2" || profile.VehicleType != "bike" {
		t.Errorf("unexpected profile: %+v", profile)
	}
	if code := s.do(http.MethodGet, "/v1/drivers/driver-9", admin, nil, nil); code != http.StatusNotFound {
		t.Errorf("missing driver: expected 404, got %d", code)
	}

	if code := s.do(http.MethodPost, "/v1/wallets/fund", rider, handler.AmountRequest{Amount: 500}, nil); code != http.StatusOK {
		t.Fatalf("fund: expected 200, got %d", code)
	}
	if code := s.do(http.MethodDelete, "/v1/wallets/rider-1", rider, nil, nil); code != http.StatusForbidden {
		t.Errorf("rider deleting wallet: expected 403, got %d", code)
	}
	if code := s.do(http.MethodDelete, "/v1/wallets/rider-1", admin, nil, nil); code != http.StatusBadRequest {
		t.Errorf("funded wallet: expected 400, got %d", code)
	}
	if code := s.do(http.MethodDelete, "/v1/wallets/platform", admin, nil, nil); code != http.StatusForbidden {
		t.Errorf("platform wallet: expected 403, got %d", code)
	}
	if code := s.do(http.MethodPost, "/v1/wallets/withdraw", rider, handler.AmountRequest{Amount: 500}, nil); code != http.StatusOK {
		t.Fatalf("withdraw: expected 200, got %d", code)
	}
	if code := s.do(http.MethodDelete, "/v1/wallets/rider-1", admin, nil, nil); code != http.StatusNoContent {
		t.Errorf("empty wallet: expected 204, got %d", code)
	}
	if code := s.do(http.MethodDelete, "/v1/wallets/rider-1", admin, nil, nil); code != http.StatusNotFound {
		t.Errorf("deleted wallet: expected 404, got %d", code)
	}
}
