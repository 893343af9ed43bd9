package repository

import (
	"context"

	"swiftdrop/internal/domain"
)

// WalletRepository defines the persistence operations for wallets and their ledger.
type WalletRepository interface {
	// GetOrCreate returns the owner's wallet, creating an empty one if needed.
	GetOrCreate(ctx context.Context, ownerID string) (*domain.Wallet, error)

	// Append records entry on the owner's wallet and moves the balance by the
	// signed amount in one atomic unit. Debits that would overdraw fail with
	// ErrInsufficientBalance and leave the wallet untouched. Returns the new balance.
	Append(ctx context.Context, ownerID string, entry *domain.Transaction) (int64, error)

	// ListTransactions returns the newest entries of the owner's wallet first.
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error)

	// Delete removes the owner's wallet and its history. Only empty wallets
	// can be removed; others fail with ErrWalletNotEmpty.
	Delete(ctx context.Context, ownerID string) error
}
