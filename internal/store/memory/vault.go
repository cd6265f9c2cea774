package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Vault is an in-memory domain.ValueLedger. Staked value moves between user
// balances and a single house balance.
type Vault struct {
	mu       sync.Mutex
	balances map[string]int64
	house    int64
}

// NewVault returns an empty Vault.
func NewVault() *Vault {
	return &Vault{balances: make(map[string]int64)}
}

// Deposit credits account with amount.
func (v *Vault) Deposit(account string, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[account] += amount
}

// Balance returns account's balance.
func (v *Vault) Balance(account string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account]
}

// House returns the balance held by the engine.
func (v *Vault) House() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.house
}

// TransferIn moves amount from a user to the house.
func (v *Vault) TransferIn(ctx context.Context, from string, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balances[from] < amount {
		return fmt.Errorf("memory: transfer in from %s: %w", from, domain.ErrBalanceInsufficient)
	}
	v.balances[from] -= amount
	v.house += amount
	return nil
}

// TransferOut moves amount from the house to a user.
func (v *Vault) TransferOut(ctx context.Context, to string, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.house < amount {
		return fmt.Errorf("memory: transfer out to %s: %w", to, domain.ErrBalanceInsufficient)
	}
	v.house -= amount
	v.balances[to] += amount
	return nil
}

// Compile-time interface check.
var _ domain.ValueLedger = (*Vault)(nil)
