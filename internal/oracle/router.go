package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Router dispatches oracle addresses to resolvers by scheme prefix such as
// "manual:" or "redis:". Addresses without a registered prefix go to the
// fallback, usually a ChainlinkResolver. The longest matching prefix wins.
type Router struct {
	routes   []route
	fallback domain.FeedResolver
}

type route struct {
	prefix   string
	resolver domain.FeedResolver
}

// NewRouter creates a Router. fallback may be nil.
func NewRouter(fallback domain.FeedResolver) *Router {
	return &Router{fallback: fallback}
}

// Handle routes addresses starting with prefix to r, replacing any earlier
// resolver for the same prefix. It is not safe to call concurrently with
// Resolve.
func (rt *Router) Handle(prefix string, r domain.FeedResolver) *Router {
	for i := range rt.routes {
		if rt.routes[i].prefix == prefix {
			rt.routes[i].resolver = r
			return rt
		}
	}
	rt.routes = append(rt.routes, route{prefix: prefix, resolver: r})
	sort.SliceStable(rt.routes, func(i, j int) bool {
		return len(rt.routes[i].prefix) > len(rt.routes[j].prefix)
	})
	return rt
}

// Resolve implements domain.FeedResolver.
func (rt *Router) Resolve(ctx context.Context, address string) (domain.PriceFeed, error) {
	for _, rte := range rt.routes {
		if strings.HasPrefix(address, rte.prefix) {
			return rte.resolver.Resolve(ctx, address)
		}
	}
	if rt.fallback == nil {
		return nil, fmt.Errorf("oracle: no resolver for %q: %w", address, domain.ErrInvalidAddress)
	}
	return rt.fallback.Resolve(ctx, address)
}

var _ domain.FeedResolver = (*Router)(nil)
