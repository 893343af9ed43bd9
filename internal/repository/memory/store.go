// Package memory keeps rides, driver profiles and wallets in process memory.
// It backs single-instance development runs and the service tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/repository"
)

// Ensure interfaces are satisfied.
var (
	_ repository.RideRepository   = (*rideRepo)(nil)
	_ repository.DriverRepository = (*driverRepo)(nil)
	_ repository.WalletRepository = (*walletRepo)(nil)
	_ repository.Transactor       = (*Store)(nil)
)

const maxTxAttempts = 3

var errDeleteInTx = errors.New("memory: wallet delete inside a transaction is not supported")

// Store is an in-memory implementation of every repository.
//
// Committed rows are never modified in place: every write stores a fresh
// copy. A transaction stages its writes privately and publishes them in one
// step on commit, after checking that no row it touched was replaced in the
// meantime. A failed transaction simply drops its staged writes.
type Store struct {
	mu      sync.RWMutex
	rides   map[string]*domain.Ride
	drivers map[string]*domain.DriverProfile
	wallets map[string]*domain.Wallet
	ledger  map[string][]domain.Transaction // keyed by owner

	// txMu serialises transactions with each other.
	txMu sync.Mutex

	// Error injection
	SetStatusError error
	appendErrors   map[string]error

	// Counters for verification
	ClaimCallCount     int32
	SetStatusCallCount int32
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rides:        make(map[string]*domain.Ride),
		drivers:      make(map[string]*domain.DriverProfile),
		wallets:      make(map[string]*domain.Wallet),
		ledger:       make(map[string][]domain.Transaction),
		appendErrors: make(map[string]error),
	}
}

// Rides returns the ride repository view of the store.
func (s *Store) Rides() repository.RideRepository { return &rideRepo{s: s} }

// Drivers returns the driver repository view of the store.
func (s *Store) Drivers() repository.DriverRepository { return &driverRepo{s: s} }

// Wallets returns the wallet repository view of the store.
func (s *Store) Wallets() repository.WalletRepository { return &walletRepo{s: s} }

// WithinTx runs fn against a private view of the store and publishes its
// writes only when fn succeeds. A commit that finds a touched row replaced
// by a write outside the transaction runs fn again on fresh state.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, stores repository.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := newTxn()
		err := fn(ctx, repository.Stores{
			Rides:   &rideRepo{s: s, tx: tx},
			Drivers: &driverRepo{s: s, tx: tx},
			Wallets: &walletRepo{s: s, tx: tx},
		})
		if err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
		if attempt == maxTxAttempts {
			return repository.ErrConflict
		}
	}
}

// txn holds the staged writes of one transaction and the committed version
// of every row it looked at. A nil version records that the row was absent.
type txn struct {
	rides   map[string]*domain.Ride
	drivers map[string]*domain.DriverProfile
	wallets map[string]*domain.Wallet
	ledger  map[string][]domain.Transaction

	seenRides   map[string]*domain.Ride
	seenDrivers map[string]*domain.DriverProfile
	seenWallets map[string]*domain.Wallet
}

func newTxn() *txn {
	return &txn{
		rides:       make(map[string]*domain.Ride),
		drivers:     make(map[string]*domain.DriverProfile),
		wallets:     make(map[string]*domain.Wallet),
		ledger:      make(map[string][]domain.Transaction),
		seenRides:   make(map[string]*domain.Ride),
		seenDrivers: make(map[string]*domain.DriverProfile),
		seenWallets: make(map[string]*domain.Wallet),
	}
}

// commit publishes tx if every row it touched is still the version it saw.
func (s *Store) commit(tx *txn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, seen := range tx.seenRides {
		if s.rides[id] != seen {
			return false
		}
	}
	for id, seen := range tx.seenDrivers {
		if s.drivers[id] != seen {
			return false
		}
	}
	for id, seen := range tx.seenWallets {
		if s.wallets[id] != seen {
			return false
		}
	}

	for id, ride := range tx.rides {
		s.rides[id] = ride
	}
	for id, profile := range tx.drivers {
		s.drivers[id] = profile
	}
	for owner, wallet := range tx.wallets {
		s.wallets[owner] = wallet
	}
	for owner, entries := range tx.ledger {
		s.ledger[owner] = append(s.ledger[owner], entries...)
	}
	return true
}

// The accessors below return the row visible to the caller: the staged row
// inside a transaction, otherwise the committed one. They expect s.mu held.

func (s *Store) ride(tx *txn, id string) *domain.Ride {
	if tx == nil {
		return s.rides[id]
	}
	if staged, ok := tx.rides[id]; ok {
		return staged
	}
	committed := s.rides[id]
	if _, ok := tx.seenRides[id]; !ok {
		tx.seenRides[id] = committed
	}
	return committed
}

func (s *Store) putRide(tx *txn, ride *domain.Ride) {
	if tx == nil {
		s.rides[ride.ID] = ride
		return
	}
	s.ride(tx, ride.ID)
	tx.rides[ride.ID] = ride
}

// peekRide is ride without recording a read, for scans over every row.
func (s *Store) peekRide(tx *txn, id string) *domain.Ride {
	if tx != nil {
		if staged, ok := tx.rides[id]; ok {
			return staged
		}
	}
	return s.rides[id]
}

// eachRide visits every visible ride once without recording reads.
func (s *Store) eachRide(tx *txn, fn func(*domain.Ride)) {
	for id := range s.rides {
		fn(s.peekRide(tx, id))
	}
	if tx == nil {
		return
	}
	for id, ride := range tx.rides {
		if _, ok := s.rides[id]; !ok {
			fn(ride)
		}
	}
}

func (s *Store) driver(tx *txn, userID string) *domain.DriverProfile {
	if tx == nil {
		return s.drivers[userID]
	}
	if staged, ok := tx.drivers[userID]; ok {
		return staged
	}
	committed := s.drivers[userID]
	if _, ok := tx.seenDrivers[userID]; !ok {
		tx.seenDrivers[userID] = committed
	}
	return committed
}

func (s *Store) putDriver(tx *txn, profile *domain.DriverProfile) {
	if tx == nil {
		s.drivers[profile.UserID] = profile
		return
	}
	s.driver(tx, profile.UserID)
	tx.drivers[profile.UserID] = profile
}

func (s *Store) wallet(tx *txn, ownerID string) *domain.Wallet {
	if tx == nil {
		return s.wallets[ownerID]
	}
	if staged, ok := tx.wallets[ownerID]; ok {
		return staged
	}
	committed := s.wallets[ownerID]
	if _, ok := tx.seenWallets[ownerID]; !ok {
		tx.seenWallets[ownerID] = committed
	}
	return committed
}

func (s *Store) putWallet(tx *txn, wallet *domain.Wallet) {
	if tx == nil {
		s.wallets[wallet.OwnerID] = wallet
		return
	}
	s.wallet(tx, wallet.OwnerID)
	tx.wallets[wallet.OwnerID] = wallet
}

func (s *Store) entries(tx *txn, ownerID string) []domain.Transaction {
	entries := append([]domain.Transaction(nil), s.ledger[ownerID]...)
	if tx != nil {
		entries = append(entries, tx.ledger[ownerID]...)
	}
	return entries
}

// ──────────────────────────────────────────────
// RIDES
// ──────────────────────────────────────────────

type rideRepo struct {
	s  *Store
	tx *txn
}

func (r *rideRepo) Create(ctx context.Context, ride *domain.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ride(r.tx, ride.ID) != nil {
		return repository.ErrAlreadyExists
	}
	c := *ride
	r.s.putRide(r.tx, &c)
	return nil
}

func (r *rideRepo) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride := r.s.ride(r.tx, id)
	if ride == nil {
		return nil, repository.ErrNotFound
	}
	c := *ride
	return &c, nil
}

// GetByIDForUpdate needs no row lock: transactions are already serialised
// and commits re-check every row they read.
func (r *rideRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r *rideRepo) GetByPaymentReferenceForUpdate(ctx context.Context, reference string) (*domain.Ride, error) {
	if reference == "" {
		return nil, repository.ErrNotFound
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *domain.Ride
	r.s.eachRide(r.tx, func(ride *domain.Ride) {
		if found == nil && ride != nil && ride.PaymentReference == reference {
			c := *ride
			found = &c
		}
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	r.s.ride(r.tx, found.ID)
	return found, nil
}

func (r *rideRepo) List(ctx context.Context, f repository.RideFilter) ([]*domain.Ride, int, error) {
	r.s.mu.Lock()
	var matched []*domain.Ride
	r.s.eachRide(r.tx, func(ride *domain.Ride) {
		if ride == nil {
			return
		}
		if f.Status != "" && ride.Status != f.Status {
			return
		}
		if f.ServiceType != "" && ride.ServiceType != f.ServiceType {
			return
		}
		if f.RequesterID != "" && ride.RequesterID != f.RequesterID {
			return
		}
		if f.DriverID != "" && ride.DriverID != f.DriverID {
			return
		}
		if f.PaymentStatus != "" && ride.PaymentStatus != f.PaymentStatus {
			return
		}
		if !f.UpdatedBefore.IsZero() && !ride.UpdatedAt.Before(f.UpdatedBefore) {
			return
		}
		c := *ride
		matched = append(matched, &c)
	})
	r.s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Offset >= total {
		return []*domain.Ride{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *rideRepo) ClaimDriver(ctx context.Context, rideID, driverID string) (bool, error) {
	atomic.AddInt32(&r.s.ClaimCallCount, 1)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride := r.s.ride(r.tx, rideID)
	if ride == nil || ride.Status != domain.RideStatusRequested || ride.DriverID != "" {
		return false, nil
	}
	c := *ride
	c.DriverID = driverID
	c.Status = domain.RideStatusAccepted
	c.UpdatedAt = time.Now().UTC()
	r.s.putRide(r.tx, &c)
	return true, nil
}

func (r *rideRepo) TransitionStatus(ctx context.Context, rideID string, from, to domain.RideStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride := r.s.ride(r.tx, rideID)
	if ride == nil || ride.Status != from {
		return false, nil
	}
	c := *ride
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	r.s.putRide(r.tx, &c)
	return true, nil
}

func (r *rideRepo) UpdatePayment(ctx context.Context, ride *domain.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := r.s.ride(r.tx, ride.ID)
	if stored == nil {
		return repository.ErrNotFound
	}
	if ride.PaymentReference != "" {
		taken := false
		r.s.eachRide(r.tx, func(other *domain.Ride) {
			if other != nil && other.ID != ride.ID && other.PaymentReference == ride.PaymentReference {
				taken = true
			}
		})
		if taken {
			return repository.ErrAlreadyExists
		}
	}
	ride.UpdatedAt = time.Now().UTC()
	c := *stored
	c.Fare = ride.Fare
	c.PaymentMethod = ride.PaymentMethod
	c.PaymentStatus = ride.PaymentStatus
	c.PaymentReference = ride.PaymentReference
	c.UpdatedAt = ride.UpdatedAt
	r.s.putRide(r.tx, &c)
	return nil
}

// ──────────────────────────────────────────────
// DRIVER PROFILES
// ──────────────────────────────────────────────

type driverRepo struct {
	s  *Store
	tx *txn
}

func (r *driverRepo) Create(ctx context.Context, profile *domain.DriverProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.driver(r.tx, profile.UserID) != nil {
		return repository.ErrAlreadyExists
	}
	c := *profile
	r.s.putDriver(r.tx, &c)
	return nil
}

func (r *driverRepo) GetByUserID(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	profile := r.s.driver(r.tx, userID)
	if profile == nil {
		return nil, repository.ErrNotFound
	}
	c := *profile
	return &c, nil
}

func (r *driverRepo) List(ctx context.Context, f repository.DriverFilter) ([]*domain.DriverProfile, int, error) {
	r.s.mu.Lock()
	var matched []*domain.DriverProfile
	seen := make(map[string]bool, len(r.s.drivers))
	visit := func(profile *domain.DriverProfile) {
		if profile == nil || seen[profile.UserID] {
			return
		}
		seen[profile.UserID] = true
		if f.Status != "" && profile.Status != f.Status {
			return
		}
		c := *profile
		matched = append(matched, &c)
	}
	for id, profile := range r.s.drivers {
		if r.tx != nil {
			if staged, ok := r.tx.drivers[id]; ok {
				profile = staged
			}
		}
		visit(profile)
	}
	if r.tx != nil {
		for _, profile := range r.tx.drivers {
			visit(profile)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].UserID < matched[j].UserID })

	total := len(matched)
	if f.Offset >= total {
		return []*domain.DriverProfile{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *driverRepo) SetStatus(ctx context.Context, userID string, status domain.DriverStatus, currentRide string) error {
	atomic.AddInt32(&r.s.SetStatusCallCount, 1)
	if r.s.SetStatusError != nil {
		return r.s.SetStatusError
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	profile := r.s.driver(r.tx, userID)
	if profile == nil {
		return repository.ErrNotFound
	}
	c := *profile
	c.Status = status
	c.CurrentRide = currentRide
	c.UpdatedAt = time.Now().UTC()
	r.s.putDriver(r.tx, &c)
	return nil
}

func (r *driverRepo) Release(ctx context.Context, userID, rideID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	profile := r.s.driver(r.tx, userID)
	if profile == nil || profile.CurrentRide != rideID {
		return false, nil
	}
	c := *profile
	c.Status = domain.DriverStatusAvailable
	c.CurrentRide = ""
	c.UpdatedAt = time.Now().UTC()
	r.s.putDriver(r.tx, &c)
	return true, nil
}

// ──────────────────────────────────────────────
// WALLETS
// ──────────────────────────────────────────────

type walletRepo struct {
	s  *Store
	tx *txn
}

// getOrCreateLocked expects s.mu to be held for writing.
func (r *walletRepo) getOrCreateLocked(ownerID string) *domain.Wallet {
	wallet := r.s.wallet(r.tx, ownerID)
	if wallet == nil {
		now := time.Now().UTC()
		wallet = &domain.Wallet{ID: uuid.NewString(), OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
		r.s.putWallet(r.tx, wallet)
	}
	return wallet
}

func (r *walletRepo) GetOrCreate(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *r.getOrCreateLocked(ownerID)
	return &c, nil
}

func (r *walletRepo) Append(ctx context.Context, ownerID string, entry *domain.Transaction) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.appendErrors[ownerID]; err != nil {
		return 0, err
	}

	wallet := r.getOrCreateLocked(ownerID)
	next := wallet.Balance + entry.Signed()
	if next < 0 {
		return 0, repository.ErrInsufficientBalance
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.WalletID = wallet.ID

	c := *wallet
	c.Balance = next
	c.UpdatedAt = entry.CreatedAt
	r.s.putWallet(r.tx, &c)
	if r.tx != nil {
		r.tx.ledger[ownerID] = append(r.tx.ledger[ownerID], *entry)
	} else {
		r.s.ledger[ownerID] = append(r.s.ledger[ownerID], *entry)
	}
	return next, nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entries := r.s.entries(r.tx, ownerID)
	out := make([]domain.Transaction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, entries[i])
	}
	return out, nil
}

// Delete removes an empty wallet together with its history.
func (r *walletRepo) Delete(ctx context.Context, ownerID string) error {
	if r.tx != nil {
		return errDeleteInTx
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wallet := r.s.wallets[ownerID]
	if wallet == nil {
		return repository.ErrNotFound
	}
	if wallet.Balance != 0 {
		return repository.ErrWalletNotEmpty
	}
	delete(r.s.wallets, ownerID)
	delete(r.s.ledger, ownerID)
	return nil
}

// ──────────────────────────────────────────────
// TEST HELPERS
// ──────────────────────────────────────────────

// PutRide stores a copy of ride as is.
func (s *Store) PutRide(ride *domain.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ride
	s.rides[ride.ID] = &c
}

// PutDriver stores a copy of profile as is.
func (s *Store) PutDriver(profile *domain.DriverProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *profile
	s.drivers[profile.UserID] = &c
}

// SetAppendError makes every ledger append for ownerID fail with err.
// A nil err clears it.
func (s *Store) SetAppendError(ownerID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.appendErrors, ownerID)
		return
	}
	s.appendErrors[ownerID] = err
}

// Ledger returns a copy of the owner's committed entries in append order.
func (s *Store) Ledger(ownerID string) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Transaction(nil), s.ledger[ownerID]...)
}

// Balance returns the owner's committed balance, zero when no wallet exists.
func (s *Store) Balance(ownerID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.wallets[ownerID]; ok {
		return w.Balance
	}
	return 0
}
