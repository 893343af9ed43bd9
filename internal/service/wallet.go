package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/observability"
	"swiftdrop/internal/repository"
)

// ErrNoDriverBound is returned when revenue cannot be distributed because
// the ride has no driver.
var ErrNoDriverBound = fmt.Errorf("%w: ride has no bound driver", ErrInvalidTransition)

const defaultTransactionLimit = 20

// WalletConfig holds ledger policy.
type WalletConfig struct {
	PlatformUserID    string
	CommissionPercent float64
}

// WalletService is the wallet ledger. Every balance change is an appended
// transaction committed together with the new balance.
type WalletService struct {
	wallets repository.WalletRepository
	tx      repository.Transactor
	cfg     WalletConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewWalletService creates a new WalletService.
func NewWalletService(
	wallets repository.WalletRepository,
	tx repository.Transactor,
	cfg WalletConfig,
	logger *slog.Logger,
) *WalletService {
	return &WalletService{
		wallets: wallets,
		tx:      tx,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// LedgerEntry is the result of a credit or debit.
type LedgerEntry struct {
	Transaction domain.Transaction
	Balance     int64
}

// Distribution is how a fare was split.
type Distribution struct {
	FareTotal     int64
	PlatformCut   int64
	DriverEarning int64
}

// WalletView is a wallet with its most recent transactions.
type WalletView struct {
	Wallet       *domain.Wallet
	Transactions []domain.Transaction
}

// PlatformUserID returns the owner id of the commission wallet.
func (s *WalletService) PlatformUserID() string {
	return s.cfg.PlatformUserID
}

// CommissionPercent returns the platform's share of each fare, in percent.
func (s *WalletService) CommissionPercent() float64 {
	return s.cfg.CommissionPercent
}

// GetOrCreate returns the owner's wallet, creating an empty one on first use.
func (s *WalletService) GetOrCreate(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	return s.wallets.GetOrCreate(ctx, ownerID)
}

// GetWallet returns the owner's wallet and its latest transactions.
func (s *WalletService) GetWallet(ctx context.Context, ownerID string, limit int) (*WalletView, error) {
	wallet, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	txns, err := s.wallets.ListTransactions(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return &WalletView{Wallet: wallet, Transactions: txns}, nil
}

// Credit adds amount to the owner's wallet.
func (s *WalletService) Credit(ctx context.Context, ownerID string, amount int64, reference, description string) (*LedgerEntry, error) {
	return s.credit(ctx, s.wallets, ownerID, amount, reference, description)
}

// Debit takes amount from the owner's wallet, failing with
// ErrInsufficientFunds rather than going negative.
func (s *WalletService) Debit(ctx context.Context, ownerID string, amount int64, reference, description string) (*LedgerEntry, error) {
	return s.debit(ctx, s.wallets, ownerID, amount, reference, description)
}

// Fund tops up the owner's wallet. An empty reference gets a generated one.
func (s *WalletService) Fund(ctx context.Context, ownerID string, amount int64, reference string) (*LedgerEntry, error) {
	if reference == "" {
		reference = fmt.Sprintf("TXN-%d", s.now().UnixMilli())
	}
	return s.Credit(ctx, ownerID, amount, reference, "Wallet funding")
}

// Withdraw pays out amount from the owner's wallet.
func (s *WalletService) Withdraw(ctx context.Context, ownerID string, amount int64) (*LedgerEntry, error) {
	reference := fmt.Sprintf("WD-%d", s.now().UnixMilli())
	return s.Debit(ctx, ownerID, amount, reference, "Wallet withdrawal")
}

// DeleteWallet removes an empty wallet and its history. The platform
// wallet is never removed.
func (s *WalletService) DeleteWallet(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrMissingOwner
	}
	if ownerID == s.cfg.PlatformUserID {
		return ErrPlatformWallet
	}
	err := s.wallets.Delete(ctx, ownerID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrWalletNotFound
	case errors.Is(err, repository.ErrWalletNotEmpty):
		return ErrWalletNotEmpty
	case err != nil:
		return err
	}
	s.logger.InfoContext(ctx, "wallet deleted", slog.String("owner_id", ownerID))
	return nil
}

func (s *WalletService) distribute(ctx context.Context, wallets repository.WalletRepository, ride *domain.Ride, fareTotal int64) (*Distribution, error) {
	if fareTotal <= 0 {
		return nil, ErrInvalidAmount
	}
	if !ride.HasDriver() {
		return nil, ErrNoDriverBound
	}

	cut, earning := SplitCommission(fareTotal, s.cfg.CommissionPercent)
	reference := rideReference(ride.ID)

	if earning > 0 {
		if _, err := s.credit(ctx, wallets, ride.DriverID, earning, reference,
			fmt.Sprintf("Earning for ride %s", ride.ID)); err != nil {
			return nil, fmt.Errorf("credit driver: %w", err)
		}
	}
	if cut > 0 {
		if _, err := s.credit(ctx, wallets, s.cfg.PlatformUserID, cut, reference,
			fmt.Sprintf("Commission for ride %s", ride.ID)); err != nil {
			return nil, fmt.Errorf("credit platform: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "revenue distributed",
		slog.String("ride_id", ride.ID),
		slog.String("driver_id", ride.DriverID),
		slog.Int64("fare", fareTotal),
		slog.Int64("platform_cut", cut),
		slog.Int64("driver_earning", earning),
	)
	return &Distribution{FareTotal: fareTotal, PlatformCut: cut, DriverEarning: earning}, nil
}

func (s *WalletService) credit(ctx context.Context, wallets repository.WalletRepository, ownerID string, amount int64, reference, description string) (*LedgerEntry, error) {
	return s.append(ctx, wallets, ownerID, domain.TransactionCredit, amount, reference, description)
}

func (s *WalletService) debit(ctx context.Context, wallets repository.WalletRepository, ownerID string, amount int64, reference, description string) (*LedgerEntry, error) {
	return s.append(ctx, wallets, ownerID, domain.TransactionDebit, amount, reference, description)
}

func (s *WalletService) append(
	ctx context.Context,
	wallets repository.WalletRepository,
	ownerID string,
	typ domain.TransactionType,
	amount int64,
	reference, description string,
) (*LedgerEntry, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	entry := &domain.Transaction{
		Type:        typ,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	balance, err := wallets.Append(ctx, ownerID, entry)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	observability.LedgerEntriesTotal.WithLabelValues(string(typ)).Inc()
	return &LedgerEntry{Transaction: *entry, Balance: balance}, nil
}

func rideReference(rideID string) string {
	return "ride:" + rideID
}
