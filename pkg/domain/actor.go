package domain

import (
	"context"
	"strings"
	"time"
)

// Actor is the identity resolved from a credential. It lives for a single request.
type Actor struct {
	ID          string
	Scopes      []string
	Permissions []string
	// Active is false for tokens the issuer reports as inactive.
	Active    bool
	ExpiresAt time.Time
	// TokenID identifies the credential for revocation checks (e.g. a JWT jti).
	TokenID string
}

// Anonymous is the actor used when a resource has no authorization gate.
var Anonymous = Actor{Active: true}

// IsAnonymous reports whether no identity was resolved.
func (a Actor) IsAnonymous() bool { return a.ID == "" }

// Expired reports whether the credential expired before now. A zero expiry never expires.
func (a Actor) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// HasScope reports whether the actor was granted scope.
func (a Actor) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the actor holds at least one of tags.
func (a Actor) HasAnyPermission(tags []string) bool {
	for _, want := range tags {
		for _, have := range a.Permissions {
			if want == have {
				return true
			}
		}
	}
	return false
}

// ParseScopes splits a space separated scope string.
func ParseScopes(raw string) []string {
	return strings.Fields(raw)
}

// ScopeOperator combines the scopes of a requirement.
type ScopeOperator string

// Supported scope operators. The zero value behaves as ScopeAnd.
const (
	ScopeAnd ScopeOperator = "AND"
	ScopeOr  ScopeOperator = "OR"
)

// ScopeRequirement lists scopes a route requires and how they combine.
type ScopeRequirement struct {
	Scopes   []string
	Operator ScopeOperator
}

// RequireScopes builds a requirement from a space separated scope string.
func RequireScopes(scopes string, op ScopeOperator) *ScopeRequirement {
	return &ScopeRequirement{Scopes: ParseScopes(scopes), Operator: op}
}

// SatisfiedBy evaluates the requirement against an actor.
func (r ScopeRequirement) SatisfiedBy(a Actor) bool {
	if len(r.Scopes) == 0 {
		return true
	}
	if strings.EqualFold(string(r.Operator), string(ScopeOr)) {
		for _, s := range r.Scopes {
			if a.HasScope(s) {
				return true
			}
		}
		return false
	}
	for _, s := range r.Scopes {
		if !a.HasScope(s) {
			return false
		}
	}
	return true
}

// PermissionRequirement is satisfied when the actor holds any one of its tags.
type PermissionRequirement []string

// SatisfiedBy evaluates the requirement against an actor; empty requirements always pass.
func (r PermissionRequirement) SatisfiedBy(a Actor) bool {
	return len(r) == 0 || a.HasAnyPermission(r)
}

// TokenResolver maps raw bearer credentials to actors.
type TokenResolver interface {
	// Resolve returns false when the credential is unknown or invalid.
	Resolve(ctx context.Context, credential string) (Actor, bool, error)
	IsRevoked(ctx context.Context, actor Actor) (bool, error)
}
