package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/updown/internal/domain"
)

type namedResolver string

func (n namedResolver) Resolve(ctx context.Context, address string) (domain.PriceFeed, error) {
	return nil, errors.New(string(n) + ":" + address)
}

func TestRouter(t *testing.T) {
	manual := NewManualFeed()
	rt := NewRouter(namedResolver("chain")).
		Handle("manual:", StaticResolver{"manual:btc": manual}).
		Handle("redis:", namedResolver("redis"))
	ctx := context.Background()

	f, err := rt.Resolve(ctx, "manual:btc")
	if err != nil || f != manual {
		t.Fatalf("manual: %v %v", f, err)
	}
	if _, err := rt.Resolve(ctx, "manual:eth"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("unknown manual feed: %v", err)
	}

	tests := []struct {
		addr string
		want string
	}{
		{"redis:btc", "redis:redis:btc"},
		{"0x0567F2323251f0Aab15c8dFb1967E4e8A7D42aeE", "chain:0x0567F2323251f0Aab15c8dFb1967E4e8A7D42aeE"},
	}
	for _, tt := range tests {
		if _, err := rt.Resolve(ctx, tt.addr); err == nil || err.Error() != tt.want {
			t.Fatalf("Resolve(%q) = %v, want %q", tt.addr, err, tt.want)
		}
	}

	if _, err := NewRouter(nil).Resolve(ctx, "0xabc"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("no fallback: %v", err)
	}
}

func TestRouterLongestPrefixWins(t *testing.T) {
	ctx := context.Background()
	// Registration order must not matter.
	for _, order := range [][]string{{"redis:", "redis:eu:"}, {"redis:eu:", "redis:"}} {
		rt := NewRouter(nil)
		for _, p := range order {
			rt.Handle(p, namedResolver(p))
		}
		if _, err := rt.Resolve(ctx, "redis:eu:btc"); err == nil || err.Error() != "redis:eu::redis:eu:btc" {
			t.Fatalf("order %v: Resolve = %v", order, err)
		}
		if _, err := rt.Resolve(ctx, "redis:btc"); err == nil || err.Error() != "redis::redis:btc" {
			t.Fatalf("order %v: Resolve = %v", order, err)
		}
	}

	rt := NewRouter(nil).Handle("manual:", namedResolver("a")).Handle("manual:", namedResolver("b"))
	if _, err := rt.Resolve(ctx, "manual:x"); err == nil || err.Error() != "b:manual:x" {
		t.Fatalf("re-registered prefix: %v", err)
	}
}
