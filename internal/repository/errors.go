package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInsufficientBalance is returned when a debit would take a wallet below zero.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrWalletNotEmpty is returned when deleting a wallet that still holds funds.
	ErrWalletNotEmpty = errors.New("wallet balance is not zero")

	// ErrConflict is returned when a transaction keeps losing to concurrent writes.
	ErrConflict = errors.New("concurrent update conflict")
)
