package core

import (
	"context"
	"strings"
	"time"

	"resourcechassis/pkg/domain"
)

// Messages surfaced for authorization failures.
const (
	MsgUnauthenticated   = "You are not authorized to perform this request. Ensure you have a valid credentials before trying again"
	MsgInsufficientScope = "The access token has insufficient scopes to access resource. Ensure the Oauth2 client as the required scope"
	MsgAccessDenied      = "Sorry you don't have sufficient permissions to access this resource"
)

// Gate resolves bearer credentials and enforces per-route scope and
// permission requirements. It never mutates state.
type Gate struct {
	resolver domain.TokenResolver
	now      func() time.Time
}

// NewGate constructs a gate backed by resolver.
func NewGate(resolver domain.TokenResolver) *Gate {
	return &Gate{resolver: resolver, now: time.Now}
}

// Authenticate resolves credential to an actor and checks the optional
// requirements. Scope is checked before permissions. With no requirements the
// actor is still resolved so it can be audited.
func (g *Gate) Authenticate(ctx context.Context, credential string, scope *domain.ScopeRequirement, perms domain.PermissionRequirement) (domain.Actor, error) {
	if strings.TrimSpace(credential) == "" {
		return domain.Actor{}, domain.Unauthenticated(MsgUnauthenticated, nil)
	}
	if g == nil || g.resolver == nil {
		return domain.Actor{}, domain.Unauthenticated(MsgUnauthenticated, nil)
	}
	actor, ok, err := g.resolver.Resolve(ctx, credential)
	if err != nil {
		return domain.Actor{}, domain.Unauthenticated(MsgUnauthenticated, err)
	}
	if !ok || !actor.Active || actor.Expired(g.now()) {
		return domain.Actor{}, domain.Unauthenticated(MsgUnauthenticated, nil)
	}
	revoked, err := g.resolver.IsRevoked(ctx, actor)
	if err != nil {
		return domain.Actor{}, domain.Unauthenticated(MsgUnauthenticated, err)
	}
	if revoked {
		return domain.Actor{}, domain.Unauthenticated(MsgUnauthenticated, nil)
	}
	if scope != nil && !scope.SatisfiedBy(actor) {
		return domain.Actor{}, domain.InsufficientScope(MsgInsufficientScope)
	}
	if !perms.SatisfiedBy(actor) {
		return domain.Actor{}, domain.AccessDenied(MsgAccessDenied)
	}
	return actor, nil
}

// BearerCredential extracts the token from an Authorization header value. It
// returns "" for any other scheme.
func BearerCredential(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
