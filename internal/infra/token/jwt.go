package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"resourcechassis/pkg/domain"
)

// Claims is the access token payload. Scope is space separated; authorities
// carry the permission tags.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
}

// JWTResolver verifies HS256 access tokens signed with a shared secret.
type JWTResolver struct {
	secret  []byte
	parser  *jwt.Parser
	now     func() time.Time
	mu      sync.RWMutex
	revoked map[string]struct{}
}

// NewJWTResolver constructs a resolver for tokens signed with secret.
func NewJWTResolver(secret []byte) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt resolver: empty secret")
	}
	return &JWTResolver{
		secret:  secret,
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		now:     time.Now,
		revoked: make(map[string]struct{}),
	}, nil
}

// Issue signs a token for actor valid for ttl. A zero ttl issues a token
// without expiry.
func (r *JWTResolver) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := r.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  actor.ID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       actor.TokenID,
		},
		UserID:      actor.ID,
		Scope:       strings.Join(actor.Scopes, " "),
		Authorities: actor.Permissions,
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Resolve implements domain.TokenResolver. Malformed, forged and expired
// tokens resolve to no actor.
func (r *JWTResolver) Resolve(_ context.Context, credential string) (domain.Actor, bool, error) {
	claims := &Claims{}
	tok, err := r.parser.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil || !tok.Valid {
		return domain.Actor{}, false, nil
	}
	actor := domain.Actor{
		ID:          claims.UserID,
		Scopes:      domain.ParseScopes(claims.Scope),
		Permissions: claims.Authorities,
		Active:      true,
		TokenID:     claims.ID,
	}
	if actor.ID == "" {
		actor.ID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		actor.ExpiresAt = claims.ExpiresAt.Time
	}
	return actor, true, nil
}

// Revoke marks the token id (jti) as revoked.
func (r *JWTResolver) Revoke(tokenID string) {
	r.mu.Lock()
	r.revoked[tokenID] = struct{}{}
	r.mu.Unlock()
}

// IsRevoked implements domain.TokenResolver.
func (r *JWTResolver) IsRevoked(_ context.Context, a domain.Actor) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.revoked[a.TokenID]
	return ok, nil
}
