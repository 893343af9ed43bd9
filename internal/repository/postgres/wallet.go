package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/repository"
)

// WalletRepository is a PostgreSQL implementation of repository.WalletRepository.
type WalletRepository struct {
	q Querier
}

// NewWalletRepository creates a new PostgreSQL wallet repository.
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{q: db}
}

// NewWalletRepositoryWithTx creates a wallet repository using a transaction.
func NewWalletRepositoryWithTx(tx *sql.Tx) *WalletRepository {
	return &WalletRepository{q: tx}
}

// GetOrCreate returns the owner's wallet, inserting an empty one first if needed.
func (r *WalletRepository) GetOrCreate(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	if err := r.ensure(ctx, ownerID); err != nil {
		return nil, err
	}

	query := `SELECT id, owner_id, balance, created_at, updated_at FROM wallets WHERE owner_id = $1`
	var wallet domain.Wallet
	err := r.q.QueryRowContext(ctx, query, ownerID).Scan(
		&wallet.ID,
		&wallet.OwnerID,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) ensure(ctx context.Context, ownerID string) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO wallets (id, owner_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (owner_id) DO NOTHING
	`
	_, err := r.q.ExecContext(ctx, query, uuid.NewString(), ownerID, now)
	return err
}

// Append moves the balance and inserts the ledger row in one statement. The
// row-level write lock taken by the UPDATE serialises concurrent appends to
// the same wallet.
func (r *WalletRepository) Append(ctx context.Context, ownerID string, entry *domain.Transaction) (int64, error) {
	if err := r.ensure(ctx, ownerID); err != nil {
		return 0, err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		WITH w AS (
			UPDATE wallets
			SET balance = balance + $2, updated_at = $8
			WHERE owner_id = $1 AND balance + $2 >= 0
			RETURNING id, balance
		), t AS (
			INSERT INTO wallet_transactions (id, wallet_id, type, amount, reference, description, created_at)
			SELECT $3, w.id, $4, $5, $6, $7, $8 FROM w
			RETURNING wallet_id
		)
		SELECT w.id, w.balance FROM w JOIN t ON t.wallet_id = w.id
	`

	var (
		walletID string
		balance  int64
	)
	err := r.q.QueryRowContext(ctx, query,
		ownerID,
		entry.Signed(),
		entry.ID,
		entry.Type,
		entry.Amount,
		entry.Reference,
		entry.Description,
		entry.CreatedAt,
	).Scan(&walletID, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The wallet exists (ensure above), so the guard rejected the debit.
			return 0, repository.ErrInsufficientBalance
		}
		return 0, err
	}

	entry.WalletID = walletID
	return balance, nil
}

// ListTransactions returns the newest ledger entries of the owner's wallet.
func (r *WalletRepository) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT t.id, t.wallet_id, t.type, t.amount, t.reference, t.description, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.owner_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2
	`

	rows, err := r.q.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Reference, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Delete removes an empty wallet and its ledger in one statement.
func (r *WalletRepository) Delete(ctx context.Context, ownerID string) error {
	query := `
		WITH doomed AS (
			SELECT id FROM wallets WHERE owner_id = $1 AND balance = 0 FOR UPDATE
		), entries AS (
			DELETE FROM wallet_transactions WHERE wallet_id IN (SELECT id FROM doomed)
		)
		DELETE FROM wallets WHERE id IN (SELECT id FROM doomed)
	`
	result, err := r.q.ExecContext(ctx, query, ownerID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE owner_id = $1)`, ownerID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return repository.ErrWalletNotEmpty
	}
	return repository.ErrNotFound
}
