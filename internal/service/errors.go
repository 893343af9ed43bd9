package service

import (
	"errors"
	"fmt"

	"swiftdrop/internal/repository"
)

// Error kinds. Every error returned by the services wraps exactly one of
// these, so callers can classify failures with errors.Is.
var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrAuthorization is returned when the actor may not act on the ride.
	ErrAuthorization = errors.New("not authorized")

	// ErrInvalidTransition is returned when a status change is not legal
	// from the ride's current state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRideUnavailable is returned when a claim loses to another driver or
	// the ride is no longer open.
	ErrRideUnavailable = errors.New("ride no longer available")

	// ErrDriverBusy is returned when a driver already has an active trip.
	ErrDriverBusy = errors.New("driver already on an active trip")

	// ErrInsufficientFunds is returned when a wallet balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")

	// ErrInvalidAmount is returned for non-positive monetary amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrDriverWalletLow is returned when a cash-collecting driver cannot
	// cover the platform commission from their wallet.
	ErrDriverWalletLow = errors.New("driver wallet balance too low to cover commission")

	// ErrAlreadyPaid is returned when a ride has already been settled.
	ErrAlreadyPaid = errors.New("ride already paid")

	// ErrGateway is returned when the payment gateway fails, times out or
	// answers with something unusable. Callers may retry.
	ErrGateway = errors.New("payment gateway error")

	// ErrSignature is returned when a webhook signature does not verify.
	ErrSignature = errors.New("invalid webhook signature")

	// ErrNotFound is returned when a ride, wallet or profile does not exist.
	ErrNotFound = repository.ErrNotFound
)

var (
	ErrInvalidRideID        = fmt.Errorf("%w: invalid ride id", ErrValidation)
	ErrInvalidRequesterID   = fmt.Errorf("%w: invalid requester id", ErrValidation)
	ErrInvalidDriverID      = fmt.Errorf("%w: invalid driver id", ErrValidation)
	ErrMissingPickup        = fmt.Errorf("%w: pickup location is required", ErrValidation)
	ErrMissingDropoff       = fmt.Errorf("%w: dropoff location is required", ErrValidation)
	ErrInvalidLocation      = fmt.Errorf("%w: invalid coordinates", ErrValidation)
	ErrInvalidServiceType   = fmt.Errorf("%w: service type must be passenger or delivery", ErrValidation)
	ErrInvalidSurge         = fmt.Errorf("%w: surge multiplier must be at least 1", ErrValidation)
	ErrInvalidStatus        = fmt.Errorf("%w: unknown ride status", ErrValidation)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: payment method must be wallet, cash or card", ErrValidation)
	ErrInvalidReference     = fmt.Errorf("%w: payment reference is required", ErrValidation)
	ErrMissingEmail         = fmt.Errorf("%w: payer email is required for card payments", ErrValidation)
	ErrNotCashRide          = fmt.Errorf("%w: ride is not a cash ride", ErrValidation)
	ErrPaymentNotSuccessful = fmt.Errorf("%w: payment not successful", ErrValidation)
	ErrInvalidVehicleType   = fmt.Errorf("%w: invalid vehicle type", ErrValidation)
	ErrInvalidAvailability  = fmt.Errorf("%w: availability must be available or offline", ErrValidation)
	ErrInvalidDriverStatus  = fmt.Errorf("%w: unknown driver status", ErrValidation)
	ErrInvalidOutcome       = fmt.Errorf("%w: expiry outcome must be timeout or ride-uncompleted", ErrValidation)

	ErrNotRideParty        = fmt.Errorf("%w: actor is neither requester nor bound driver", ErrAuthorization)
	ErrStatusNotAllowed    = fmt.Errorf("%w: status not allowed for this role", ErrAuthorization)
	ErrRideTerminal        = fmt.Errorf("%w: ride already finished", ErrInvalidTransition)
	ErrConcurrentUpdate    = fmt.Errorf("%w: ride status changed concurrently", ErrInvalidTransition)
	ErrDriverOnActiveRide  = fmt.Errorf("%w: driver has an active ride", ErrInvalidTransition)
	ErrRideNotPayable      = fmt.Errorf("%w: ride ended without completing", ErrInvalidTransition)
	ErrDriverProfileExists = fmt.Errorf("%w: driver profile already exists", ErrValidation)

	ErrMissingOwner   = fmt.Errorf("%w: owner id is required", ErrValidation)
	ErrWalletNotEmpty = fmt.Errorf("%w: wallet still holds funds", ErrValidation)
	ErrPlatformWallet = fmt.Errorf("%w: platform wallet cannot be removed", ErrAuthorization)
	ErrWalletNotFound = fmt.Errorf("wallet: %w", ErrNotFound)
)
