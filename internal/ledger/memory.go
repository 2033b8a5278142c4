package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-process TokenLedger for local development and tests.
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[string]int64
	allowances map[string]int64
	escrow     int64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[string]int64),
		allowances: make(map[string]int64),
	}
}

// Mint credits an address with freshly issued units.
func (l *MemoryLedger) Mint(address string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[address] += amount
}

// Approve sets the amount the platform may pull from an address.
func (l *MemoryLedger) Approve(address string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[address] = amount
}

// EscrowBalance reports the units currently held by the platform.
func (l *MemoryLedger) EscrowBalance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escrow
}

func (l *MemoryLedger) TransferIn(ctx context.Context, from string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[from] < amount {
		return fmt.Errorf("transfer in from %s: %w", from, ErrInsufficientAllowance)
	}
	if l.balances[from] < amount {
		return fmt.Errorf("transfer in from %s: %w", from, ErrInsufficientBalance)
	}
	l.allowances[from] -= amount
	l.balances[from] -= amount
	l.escrow += amount
	return nil
}

func (l *MemoryLedger) TransferOut(ctx context.Context, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.escrow < amount {
		return fmt.Errorf("transfer out to %s: %w", to, ErrInsufficientBalance)
	}
	l.escrow -= amount
	l.balances[to] += amount
	return nil
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, address string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address], nil
}

var _ TokenLedger = (*MemoryLedger)(nil)
