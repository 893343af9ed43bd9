package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/gateway"
	"swiftdrop/internal/notify"
	"swiftdrop/internal/observability"
	"swiftdrop/internal/redis"
	"swiftdrop/internal/repository"
)

// Webhook acknowledgement statuses. Every one of them is a success from the
// gateway's point of view.
const (
	WebhookProcessed        = "processed"
	WebhookAlreadyProcessed = "already_processed"
	WebhookRideNotFound     = "ride_not_found"
	WebhookIgnored          = "ignored"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	reconcileLockName     = "settlement:reconcile"
	reconcileLockTTL      = 5 * time.Minute
)

// ErrReconcileRunning is returned when another instance holds the
// reconciliation lock.
var ErrReconcileRunning = errors.New("reconciliation already running")

// SettlementConfig holds settlement settings.
type SettlementConfig struct {
	Currency       string
	GatewayTimeout time.Duration
}

// SettlementService settles ride payments for every payment method. All
// paths that can observe a successful payment share one already-paid guard
// and one revenue distribution, so a ride is credited exactly once.
type SettlementService struct {
	rides    repository.RideRepository
	tx       repository.Transactor
	wallets  *WalletService
	gateway  gateway.Client
	fares    FareCalculator
	notifier *NotificationService
	locks    redis.LockStoreInterface
	cache    redis.RideCacheInterface
	cfg      SettlementConfig
	logger   *slog.Logger
}

// NewSettlementService creates a new SettlementService. locks and cache may be nil.
func NewSettlementService(
	rides repository.RideRepository,
	tx repository.Transactor,
	wallets *WalletService,
	gw gateway.Client,
	fares FareCalculator,
	notifier *NotificationService,
	locks redis.LockStoreInterface,
	cache redis.RideCacheInterface,
	cfg SettlementConfig,
	logger *slog.Logger,
) *SettlementService {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	return &SettlementService{
		rides:    rides,
		tx:       tx,
		wallets:  wallets,
		gateway:  gw,
		fares:    fares,
		notifier: notifier,
		locks:    locks,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}
}

// PaymentResult is the outcome of a settlement call.
type PaymentResult struct {
	Ride         *domain.Ride
	Distribution *Distribution

	// Set for card payments only.
	Reference        string
	AuthorizationURL string
}

// PayForRide settles a ride with the given method on behalf of the requester.
func (s *SettlementService) PayForRide(ctx context.Context, actor domain.Actor, rideID, method string) (*PaymentResult, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	m := domain.PaymentMethod(method)
	if !m.IsValid() {
		return nil, ErrInvalidPaymentMethod
	}

	var (
		result *PaymentResult
		err    error
	)
	switch m {
	case domain.PaymentMethodWallet:
		result, err = s.payWithWallet(ctx, actor, rideID)
	case domain.PaymentMethodCash:
		result, err = s.payWithCash(ctx, actor, rideID)
	case domain.PaymentMethodCard:
		result, err = s.payWithCard(ctx, actor, rideID)
	}
	if err != nil {
		observability.SettlementsTotal.WithLabelValues(method, outcomeOf(err)).Inc()
		return nil, err
	}

	observability.SettlementsTotal.WithLabelValues(method, string(result.Ride.PaymentStatus)).Inc()
	s.invalidate(ctx, rideID)
	return result, nil
}

func (s *SettlementService) payWithWallet(ctx context.Context, actor domain.Actor, rideID string) (*PaymentResult, error) {
	var (
		ride *domain.Ride
		dist *Distribution
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		var err error
		ride, err = stores.Rides.GetByIDForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		if err := checkPayable(ride, actor); err != nil {
			return err
		}
		if !ride.HasDriver() {
			return ErrNoDriverBound
		}

		fare := s.fares.ForRide(ride).Total
		if _, err := s.wallets.debit(ctx, stores.Wallets, ride.RequesterID, fare, rideReference(ride.ID),
			fmt.Sprintf("Payment for ride %s", ride.ID)); err != nil {
			return err
		}
		dist, err = s.wallets.distribute(ctx, stores.Wallets, ride, fare)
		if err != nil {
			return err
		}

		ride.Fare = fare
		ride.PaymentMethod = domain.PaymentMethodWallet
		ride.PaymentStatus = domain.PaymentStatusPaid
		return stores.Rides.UpdatePayment(ctx, ride)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "ride paid from wallet",
		slog.String("ride_id", ride.ID),
		slog.Int64("fare", ride.Fare),
	)
	s.notifier.PaymentSettled(ctx, ride)
	return &PaymentResult{Ride: ride, Distribution: dist}, nil
}

// payWithCash records a cash ride. Once the ride is completed the driver
// holds the fare, so the platform's cut is collected from their wallet.
func (s *SettlementService) payWithCash(ctx context.Context, actor domain.Actor, rideID string) (*PaymentResult, error) {
	var (
		ride *domain.Ride
		dist *Distribution
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		var err error
		ride, err = stores.Rides.GetByIDForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		if err := checkPayable(ride, actor); err != nil {
			return err
		}

		ride.Fare = s.fares.ForRide(ride).Total
		ride.PaymentMethod = domain.PaymentMethodCash
		ride.PaymentStatus = domain.PaymentStatusPending

		if ride.Status == domain.RideStatusCompleted {
			dist, err = s.collectCommission(ctx, stores.Wallets, ride)
			if err != nil {
				return err
			}
			ride.PaymentStatus = domain.PaymentStatusPaid
		}
		return stores.Rides.UpdatePayment(ctx, ride)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cash payment recorded",
		slog.String("ride_id", ride.ID),
		slog.String("payment_status", string(ride.PaymentStatus)),
	)
	if ride.PaymentStatus == domain.PaymentStatusPaid {
		s.notifier.PaymentSettled(ctx, ride)
	}
	return &PaymentResult{Ride: ride, Distribution: dist}, nil
}

// ConfirmCashPayment marks a cash ride as settled after the fact and collects
// the platform's cut from the driver.
func (s *SettlementService) ConfirmCashPayment(ctx context.Context, actor domain.Actor, rideID string) (*PaymentResult, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	var (
		ride *domain.Ride
		dist *Distribution
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		var err error
		ride, err = stores.Rides.GetByIDForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.PaymentStatus == domain.PaymentStatusPaid {
			return ErrAlreadyPaid
		}
		if !isOperator(actor) && RoleFor(ride, actor.UserID) != RideRoleDriver {
			return ErrNotRideParty
		}
		if ride.PaymentMethod != domain.PaymentMethodCash {
			return ErrNotCashRide
		}

		if ride.Fare <= 0 {
			ride.Fare = s.fares.ForRide(ride).Total
		}
		dist, err = s.collectCommission(ctx, stores.Wallets, ride)
		if err != nil {
			return err
		}
		ride.PaymentStatus = domain.PaymentStatusPaid
		return stores.Rides.UpdatePayment(ctx, ride)
	})
	if err != nil {
		observability.SettlementsTotal.WithLabelValues(string(domain.PaymentMethodCash), outcomeOf(err)).Inc()
		return nil, err
	}

	observability.SettlementsTotal.WithLabelValues(string(domain.PaymentMethodCash), string(ride.PaymentStatus)).Inc()
	s.invalidate(ctx, rideID)
	s.logger.InfoContext(ctx, "cash payment confirmed",
		slog.String("ride_id", ride.ID),
		slog.String("actor_id", actor.UserID),
	)
	s.notifier.PaymentSettled(ctx, ride)
	return &PaymentResult{Ride: ride, Distribution: dist}, nil
}

// collectCommission moves the platform's cut of a cash fare from the driver
// to the platform. A driver whose balance does not exceed the cut is
// rejected with ErrDriverWalletLow.
func (s *SettlementService) collectCommission(ctx context.Context, wallets repository.WalletRepository, ride *domain.Ride) (*Distribution, error) {
	if !ride.HasDriver() {
		return nil, ErrNoDriverBound
	}
	if ride.Fare <= 0 {
		return nil, ErrInvalidAmount
	}

	cut, earning := SplitCommission(ride.Fare, s.wallets.CommissionPercent())
	dist := &Distribution{FareTotal: ride.Fare, PlatformCut: cut, DriverEarning: earning}
	if cut == 0 {
		return dist, nil
	}

	driverWallet, err := wallets.GetOrCreate(ctx, ride.DriverID)
	if err != nil {
		return nil, err
	}
	if driverWallet.Balance <= cut {
		s.logger.WarnContext(ctx, "driver wallet too low for cash commission",
			slog.String("ride_id", ride.ID),
			slog.String("driver_id", ride.DriverID),
			slog.Int64("balance", driverWallet.Balance),
			slog.Int64("platform_cut", cut),
		)
		return nil, ErrDriverWalletLow
	}

	reference := rideReference(ride.ID)
	if _, err := s.wallets.debit(ctx, wallets, ride.DriverID, cut, reference,
		fmt.Sprintf("Commission for cash ride %s", ride.ID)); err != nil {
		return nil, fmt.Errorf("debit driver: %w", err)
	}
	if _, err := s.wallets.credit(ctx, wallets, s.wallets.PlatformUserID(), cut, reference,
		fmt.Sprintf("Commission for ride %s", ride.ID)); err != nil {
		return nil, fmt.Errorf("credit platform: %w", err)
	}
	return dist, nil
}

// payWithCard opens a hosted gateway transaction. Nothing is distributed
// until the gateway confirms the charge.
func (s *SettlementService) payWithCard(ctx context.Context, actor domain.Actor, rideID string) (*PaymentResult, error) {
	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(ride, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(actor.Email) == "" {
		return nil, ErrMissingEmail
	}
	if !ride.HasDriver() {
		return nil, ErrNoDriverBound
	}
	fare := s.fares.ForRide(ride).Total
	if fare <= 0 {
		return nil, ErrInvalidAmount
	}

	// An open transaction may already have been paid; settle it instead of
	// orphaning the charge behind a new reference.
	previous := ""
	if ride.PaymentStatus == domain.PaymentStatusInitialized && ride.PaymentReference != "" {
		previous = ride.PaymentReference
		v, err := s.verify(ctx, previous)
		if err != nil {
			return nil, err
		}
		if v.Success {
			settled, dist, err := s.settleCard(ctx, previous, v.AmountMinor)
			if err != nil {
				return nil, err
			}
			return &PaymentResult{Ride: settled, Distribution: dist, Reference: previous}, nil
		}
	}

	opened, err := s.initialize(ctx, gateway.InitializeRequest{
		Email:       actor.Email,
		AmountMinor: fare * 100,
		Currency:    s.cfg.Currency,
		Metadata: map[string]string{
			"ride_id":      ride.ID,
			"requester_id": ride.RequesterID,
		},
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		locked, err := stores.Rides.GetByIDForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus == domain.PaymentStatusPaid {
			return ErrAlreadyPaid
		}
		locked.Fare = fare
		locked.PaymentMethod = domain.PaymentMethodCard
		locked.PaymentStatus = domain.PaymentStatusInitialized
		locked.PaymentReference = opened.Reference
		if err := stores.Rides.UpdatePayment(ctx, locked); err != nil {
			return err
		}
		ride = locked
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway transaction opened but not recorded",
			slog.String("ride_id", rideID),
			slog.String("reference", opened.Reference),
			slog.Any("error", err),
		)
		return nil, err
	}

	if previous != "" {
		s.logger.WarnContext(ctx, "card reference replaced",
			slog.String("ride_id", ride.ID),
			slog.String("previous_reference", previous),
			slog.String("reference", opened.Reference),
		)
	}
	s.logger.InfoContext(ctx, "card payment initialized",
		slog.String("ride_id", ride.ID),
		slog.String("reference", opened.Reference),
	)
	s.notifier.Emit(ctx, ride.RequesterID, NotificationPaymentInitialized, "Complete Your Payment",
		fmt.Sprintf("Complete your card payment of ₦%d to settle your ride.", fare),
		[]notify.Channel{notify.ChannelPush}, map[string]any{
			"ride_id":           ride.ID,
			"reference":         opened.Reference,
			"authorization_url": opened.AuthorizationURL,
		})

	return &PaymentResult{
		Ride:             ride,
		Reference:        opened.Reference,
		AuthorizationURL: opened.AuthorizationURL,
	}, nil
}

// VerifyPayment asks the gateway about reference and settles the ride if the
// charge succeeded.
func (s *SettlementService) VerifyPayment(ctx context.Context, reference string) (*PaymentResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrInvalidReference
	}

	v, err := s.verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !v.Success {
		s.logger.InfoContext(ctx, "payment not successful",
			slog.String("reference", reference),
			slog.String("gateway_status", v.Status),
		)
		return nil, ErrPaymentNotSuccessful
	}

	ride, dist, err := s.settleCard(ctx, reference, v.AmountMinor)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Ride: ride, Distribution: dist, Reference: reference}, nil
}

// WebhookAck is what the webhook endpoint reports back to the gateway.
type WebhookAck struct {
	Status    string
	Reference string
	RideID    string
}

// HandleWebhook verifies and applies a gateway event. Deliveries are
// at-least-once; repeats are acknowledged without touching any wallet.
func (s *SettlementService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookAck, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: no gateway configured", ErrGateway)
	}

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			observability.WebhookDeliveriesTotal.WithLabelValues("invalid_signature").Inc()
			s.logger.WarnContext(ctx, "webhook rejected: invalid signature")
			return nil, ErrSignature
		}
		observability.WebhookDeliveriesTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: malformed webhook: %v", ErrValidation, err)
	}

	ack := &WebhookAck{Reference: event.Reference}
	if event.Type != gateway.EventChargeSucceeded || !event.Succeeded {
		ack.Status = WebhookIgnored
		observability.WebhookDeliveriesTotal.WithLabelValues(ack.Status).Inc()
		s.logger.InfoContext(ctx, "webhook ignored",
			slog.String("event", event.Type),
			slog.String("reference", event.Reference),
		)
		return ack, nil
	}

	ride, _, err := s.settleCard(ctx, event.Reference, event.AmountMinor)
	switch {
	case err == nil:
		ack.Status = WebhookProcessed
		ack.RideID = ride.ID
	case errors.Is(err, repository.ErrNotFound):
		ack.Status = WebhookRideNotFound
		s.logger.WarnContext(ctx, "webhook for unknown reference", slog.String("reference", event.Reference))
	case errors.Is(err, ErrAlreadyPaid):
		ack.Status = WebhookAlreadyProcessed
		s.logger.InfoContext(ctx, "webhook already processed", slog.String("reference", event.Reference))
	default:
		observability.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	observability.WebhookDeliveriesTotal.WithLabelValues(ack.Status).Inc()
	return ack, nil
}

// settleCard is the single success path for card payments. The ride row is
// locked, the already-paid guard is evaluated on that fresh state, and the
// paid marker is the last write of the transaction.
func (s *SettlementService) settleCard(ctx context.Context, reference string, amountMinor int64) (*domain.Ride, *Distribution, error) {
	var (
		ride *domain.Ride
		dist *Distribution
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		var err error
		ride, err = stores.Rides.GetByPaymentReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if ride.PaymentStatus == domain.PaymentStatusPaid {
			return ErrAlreadyPaid
		}

		fare := ride.Fare
		if fare <= 0 {
			fare = amountMinor / 100
		}
		dist, err = s.wallets.distribute(ctx, stores.Wallets, ride, fare)
		if err != nil {
			return err
		}

		ride.Fare = fare
		ride.PaymentMethod = domain.PaymentMethodCard
		ride.PaymentStatus = domain.PaymentStatusPaid
		return stores.Rides.UpdatePayment(ctx, ride)
	})
	if err != nil {
		observability.SettlementsTotal.WithLabelValues(string(domain.PaymentMethodCard), outcomeOf(err)).Inc()
		return nil, nil, err
	}

	observability.SettlementsTotal.WithLabelValues(string(domain.PaymentMethodCard), string(domain.PaymentStatusPaid)).Inc()
	s.invalidate(ctx, ride.ID)
	s.logger.InfoContext(ctx, "card payment settled",
		slog.String("ride_id", ride.ID),
		slog.String("reference", reference),
		slog.Int64("fare", ride.Fare),
	)
	s.notifier.PaymentSettled(ctx, ride)
	return ride, dist, nil
}

// ReconcileReport summarises one reconciliation sweep.
type ReconcileReport struct {
	Scanned     int
	Settled     int
	AlreadyPaid int
	Unpaid      int
	Failed      int
}

// ReconcileInitialized re-verifies card payments that have been waiting
// longer than olderThan and settles the ones the gateway confirms. Only one
// instance sweeps at a time when a lock store is configured.
func (s *SettlementService) ReconcileInitialized(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileReport, error) {
	if limit <= 0 {
		limit = maxPageLimit
	}

	if s.locks != nil {
		token, ok, err := s.locks.Acquire(ctx, reconcileLockName, reconcileLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			return nil, ErrReconcileRunning
		}
		defer func() {
			if err := s.locks.Release(context.WithoutCancel(ctx), reconcileLockName, token); err != nil {
				s.logger.WarnContext(ctx, "release reconcile lock failed", slog.Any("error", err))
			}
		}()
	}

	rides, _, err := s.rides.List(ctx, repository.RideFilter{
		PaymentStatus: domain.PaymentStatusInitialized,
		UpdatedBefore: time.Now().UTC().Add(-olderThan),
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(rides)}
	for _, ride := range rides {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		logger := s.logger.With(slog.String("ride_id", ride.ID), slog.String("reference", ride.PaymentReference))

		v, err := s.verify(ctx, ride.PaymentReference)
		if err != nil {
			report.Failed++
			logger.WarnContext(ctx, "reconcile verify failed", slog.Any("error", err))
			continue
		}
		if !v.Success {
			report.Unpaid++
			continue
		}

		_, _, err = s.settleCard(ctx, ride.PaymentReference, v.AmountMinor)
		switch {
		case err == nil:
			report.Settled++
		case errors.Is(err, ErrAlreadyPaid):
			report.AlreadyPaid++
		default:
			report.Failed++
			logger.ErrorContext(ctx, "reconcile settle failed", slog.Any("error", err))
		}
	}

	s.logger.InfoContext(ctx, "reconciliation finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("settled", report.Settled),
		slog.Int("already_paid", report.AlreadyPaid),
		slog.Int("unpaid", report.Unpaid),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *SettlementService) initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Initialization, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: no gateway configured", ErrGateway)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	opened, err := s.gateway.Initialize(ctx, req)
	if err == nil && (opened == nil || opened.Reference == "") {
		err = errors.New("empty reference")
	}
	observeGateway("initialize", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize: %v", ErrGateway, err)
	}
	return opened, nil
}

func (s *SettlementService) verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: no gateway configured", ErrGateway)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	v, err := s.gateway.Verify(ctx, reference)
	if err == nil && v == nil {
		err = errors.New("empty verification")
	}
	observeGateway("verify", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: verify: %v", ErrGateway, err)
	}
	return v, nil
}

func (s *SettlementService) invalidate(ctx context.Context, rideID string) {
	invalidateRide(ctx, s.cache, s.logger, rideID)
}

func observeGateway(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.GatewayLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// checkPayable runs the common settlement preconditions. The already-paid
// guard comes first.
func checkPayable(ride *domain.Ride, actor domain.Actor) error {
	if ride.PaymentStatus == domain.PaymentStatusPaid {
		return ErrAlreadyPaid
	}
	if !isOperator(actor) && ride.RequesterID != actor.UserID {
		return ErrNotRideParty
	}
	switch ride.Status {
	case domain.RideStatusCancelled, domain.RideStatusTimeout, domain.RideStatusUncompleted:
		return ErrRideNotPayable
	}
	return nil
}

func isOperator(actor domain.Actor) bool {
	return actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSystem
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrDriverWalletLow):
		return "driver_wallet_low"
	case errors.Is(err, ErrGateway):
		return "gateway_error"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAuthorization), errors.Is(err, ErrInvalidTransition):
		return "rejected"
	default:
		return "error"
	}
}
