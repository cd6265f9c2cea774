// Package authz holds the role registry that gates privileged engine calls.
package authz

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Canonical normalises an account identifier. Hex addresses are returned in
// EIP-55 checksum form; anything else is trimmed and kept as is.
func Canonical(account string) string {
	account = strings.TrimSpace(account)
	if common.IsHexAddress(account) {
		return common.HexToAddress(account).Hex()
	}
	return account
}

// Registry is a domain.Authorizer seeded from configuration.
type Registry struct {
	mu    sync.RWMutex
	roles map[domain.Role]map[string]struct{}
}

// NewRegistry creates a registry with one owner and any number of admins and
// operators.
func NewRegistry(owner string, admins, operators []string) *Registry {
	r := &Registry{roles: make(map[domain.Role]map[string]struct{})}
	if owner != "" {
		r.Grant(domain.RoleOwner, owner)
	}
	for _, a := range admins {
		r.Grant(domain.RoleAdmin, a)
	}
	for _, o := range operators {
		r.Grant(domain.RoleOperator, o)
	}
	return r
}

// Grant gives account the role.
func (r *Registry) Grant(role domain.Role, account string) {
	account = Canonical(account)
	if account == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.roles[role]
	if !ok {
		set = make(map[string]struct{})
		r.roles[role] = set
	}
	set[account] = struct{}{}
}

// Revoke removes the role from account.
func (r *Registry) Revoke(role domain.Role, account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles[role], Canonical(account))
}

// Has reports whether account holds role.
func (r *Registry) Has(role domain.Role, account string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[role][Canonical(account)]
	return ok
}

// Authorize implements domain.Authorizer.
func (r *Registry) Authorize(ctx context.Context, caller string, role domain.Role) error {
	if caller == "" {
		return domain.ErrMissingCaller
	}
	if r.Has(role, caller) {
		return nil
	}
	switch role {
	case domain.RoleOwner:
		return domain.ErrNotOwner
	case domain.RoleAdmin:
		return domain.ErrNotAdmin
	default:
		return domain.ErrNotOperator
	}
}

// Compile-time interface check.
var _ domain.Authorizer = (*Registry)(nil)
