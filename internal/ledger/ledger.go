// Package ledger abstracts the external value-transfer service the market
// settles against. Transfers are exact-accounting: the debited and credited
// amounts are always equal to the requested amount.
package ledger

import (
	"context"
	"errors"
)

var (
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
)

// TokenLedger is the minimum contract the market core depends on.
// Amounts are in smallest token units.
type TokenLedger interface {
	// TransferIn pulls amount from the given address into the platform
	// escrow account. Fails with ErrInsufficientAllowance or
	// ErrInsufficientBalance.
	TransferIn(ctx context.Context, from string, amount int64) error

	// TransferOut pays amount from the platform escrow account to the
	// given address.
	TransferOut(ctx context.Context, to string, amount int64) error

	// BalanceOf reports the spendable balance of an address.
	BalanceOf(ctx context.Context, address string) (int64, error)
}
