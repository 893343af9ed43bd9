package domain

import "time"

// TransactionType is the direction of a wallet entry.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// Wallet holds the balance of an owner. Balance is the signed sum of the
// owner's transactions and is only ever changed together with an append.
type Wallet struct {
	ID        string
	OwnerID   string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable wallet ledger entry. Amount is always positive.
type Transaction struct {
	ID          string
	WalletID    string
	Type        TransactionType
	Amount      int64
	Reference   string
	Description string
	CreatedAt   time.Time
}

// Signed returns the amount with the sign applied to the balance.
func (t Transaction) Signed() int64 {
	if t.Type == TransactionDebit {
		return -t.Amount
	}
	return t.Amount
}
