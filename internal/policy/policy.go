// Package policy holds the access-policy table: one row per game type,
// mapping it to the set of experience routes it may reach. The guard treats
// the table as a cache refreshed on every protected-route evaluation, so
// edits take effect on the next navigation.
package policy

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("policy: not found")

type Policy struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	AllowedRoutes []string `json:"allowedRoutes"`
}

// Source resolves a game type to its policy. Implementations re-read
// backing state on every call.
type Source interface {
	ByName(ctx context.Context, name string) (Policy, error)
}

// Allows reports whether route is in the policy's allowed set. Matching is
// case-insensitive and ignores leading slashes: the table is human-edited.
func (p Policy) Allows(route string) bool {
	route = normalizeRoute(route)
	for _, r := range p.AllowedRoutes {
		if strings.EqualFold(normalizeRoute(r), route) {
			return true
		}
	}
	return false
}

func normalizeRoute(r string) string {
	return strings.TrimPrefix(strings.TrimSpace(r), "/")
}
