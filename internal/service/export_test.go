package service

import (
	"context"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/repository"
)

// Distribute runs the revenue split for ride in its own transaction.
func (s *WalletService) Distribute(ctx context.Context, ride *domain.Ride, fareTotal int64) (*Distribution, error) {
	var dist *Distribution
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		var err error
		dist, err = s.distribute(ctx, stores.Wallets, ride, fareTotal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}
