package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/updown/internal/domain"
)

func TestRegistryAuthorize(t *testing.T) {
	const (
		admin    = "0x52908400098527886E0F7030069857D2E4169EE7"
		operator = "0x8617e340b3d01fa5f11f306f4090fd50e238070d"
	)
	r := NewRegistry("owner", []string{admin}, []string{operator})

	tests := []struct {
		name    string
		caller  string
		role    domain.Role
		wantErr error
	}{
		{"admin", admin, domain.RoleAdmin, nil},
		{"admin lower case", "0x52908400098527886e0f7030069857d2e4169ee7", domain.RoleAdmin, nil},
		{"operator mixed case", "0x8617E340B3D01FA5F11F306F4090FD50E238070D", domain.RoleOperator, nil},
		{"admin is not operator", admin, domain.RoleOperator, domain.ErrNotOperator},
		{"operator is not admin", operator, domain.RoleAdmin, domain.ErrNotAdmin},
		{"owner", "owner", domain.RoleOwner, nil},
		{"stranger", "mallory", domain.RoleOwner, domain.ErrNotOwner},
		{"missing caller", "", domain.RoleAdmin, domain.ErrMissingCaller},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Authorize(context.Background(), tt.caller, tt.role)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, domain.ErrAuthorization) {
				t.Errorf("expected authorization category, got %v", err)
			}
		})
	}
}

func TestRegistryRevoke(t *testing.T) {
	r := NewRegistry("", nil, []string{"bot"})
	r.Revoke(domain.RoleOperator, "bot")
	if r.Has(domain.RoleOperator, "bot") {
		t.Fatal("expected role to be revoked")
	}
}
