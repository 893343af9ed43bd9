package repository

import "context"

// Stores groups repositories bound to one unit of work.
type Stores struct {
	Rides   RideRepository
	Drivers DriverRepository
	Wallets WalletRepository
}

// Transactor runs fn inside a single transaction. fn's error rolls every
// write back; a nil return commits them together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
