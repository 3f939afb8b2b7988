// Package token implements domain.TokenResolver over static tables, signed
// JWTs and remote token introspection.
package token

import (
	"context"
	"sync"

	"resourcechassis/pkg/domain"
)

var (
	_ domain.TokenResolver = (*StaticResolver)(nil)
	_ domain.TokenResolver = (*JWTResolver)(nil)
	_ domain.TokenResolver = (*IntrospectionResolver)(nil)
)

// Demo credentials served by chassisd in static mode.
const (
	DemoAdminToken = "admin_token"
	DemoGuestToken = "guest_token"
	DemoUserID     = "26957b74-47d0-40df-96a1-f104f3828552"
)

// DemoActors returns the static demo table: an administrator holding every
// write scope and authority, and a guest holding none.
func DemoActors() map[string]domain.Actor {
	return map[string]domain.Actor{
		DemoAdminToken: {
			ID:          DemoUserID,
			Scopes:      domain.ParseScopes("create update delete"),
			Permissions: []string{"can_create", "can_update", "can_delete"},
			Active:      true,
			TokenID:     DemoAdminToken,
		},
		DemoGuestToken: {
			ID:      DemoUserID,
			Active:  true,
			TokenID: DemoGuestToken,
		},
	}
}

// StaticResolver resolves credentials from a fixed table.
type StaticResolver struct {
	mu      sync.RWMutex
	actors  map[string]domain.Actor
	revoked map[string]struct{}
}

// NewStaticResolver copies actors keyed by credential.
func NewStaticResolver(actors map[string]domain.Actor) *StaticResolver {
	cp := make(map[string]domain.Actor, len(actors))
	for k, v := range actors {
		cp[k] = v
	}
	return &StaticResolver{actors: cp, revoked: make(map[string]struct{})}
}

// Resolve implements domain.TokenResolver.
func (s *StaticResolver) Resolve(_ context.Context, credential string) (domain.Actor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[credential]
	return a, ok, nil
}

// Revoke marks the token id as revoked.
func (s *StaticResolver) Revoke(tokenID string) {
	s.mu.Lock()
	s.revoked[tokenID] = struct{}{}
	s.mu.Unlock()
}

// IsRevoked implements domain.TokenResolver.
func (s *StaticResolver) IsRevoked(_ context.Context, a domain.Actor) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[a.TokenID]
	return ok && a.TokenID != "", nil
}
