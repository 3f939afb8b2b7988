package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resourcechassis/pkg/domain"
)

// HTTPError reports a non-2xx introspection response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("introspection: http %d: %s", e.StatusCode, msg)
}

// IntrospectionResolver asks an OAuth2 authorization server about each
// credential (RFC 7662). The server's active flag decides revocation.
type IntrospectionResolver struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewIntrospectionResolver validates endpoint and builds a resolver that
// authenticates with HTTP basic client credentials.
func NewIntrospectionResolver(endpoint, clientID, clientSecret string) (*IntrospectionResolver, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("introspection: missing endpoint")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.New("introspection: invalid endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("introspection: invalid endpoint scheme")
	}
	if u.Host == "" {
		return nil, errors.New("introspection: invalid endpoint host")
	}
	return &IntrospectionResolver{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// flexBool accepts true, "true" and "1".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		parsed, _ := strconv.ParseBool(t)
		*b = flexBool(parsed)
	case float64:
		*b = t != 0
	default:
		*b = false
	}
	return nil
}

type introspection struct {
	Active      flexBool `json:"active"`
	Scope       string   `json:"scope"`
	Authorities []string `json:"authorities"`
	UserID      string   `json:"user_id"`
	Subject     string   `json:"sub"`
	Expiry      int64    `json:"exp"`
	TokenID     string   `json:"jti"`
}

// Resolve implements domain.TokenResolver. Transport and server failures are
// returned as errors; an inactive token resolves to an inactive actor.
func (r *IntrospectionResolver) Resolve(ctx context.Context, credential string) (domain.Actor, bool, error) {
	form := url.Values{"token": {credential}, "token_type_hint": {"access_token"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Actor{}, false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if r.clientID != "" {
		req.SetBasicAuth(r.clientID, r.clientSecret)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.Actor{}, false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Actor{}, false, &HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var out introspection
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Actor{}, false, fmt.Errorf("introspection: decode: %w", err)
	}
	actor := domain.Actor{
		ID:          out.UserID,
		Scopes:      domain.ParseScopes(out.Scope),
		Permissions: out.Authorities,
		Active:      bool(out.Active),
		TokenID:     out.TokenID,
	}
	if actor.ID == "" {
		actor.ID = out.Subject
	}
	if out.Expiry > 0 {
		actor.ExpiresAt = time.Unix(out.Expiry, 0).UTC()
	}
	return actor, true, nil
}

// IsRevoked implements domain.TokenResolver. The server already reports
// revoked tokens as inactive.
func (r *IntrospectionResolver) IsRevoked(context.Context, domain.Actor) (bool, error) {
	return false, nil
}
