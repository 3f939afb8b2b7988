package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestScopeRequirement(t *testing.T) {
	actor := Actor{ID: "1", Scopes: ParseScopes("read  create")}
	cases := []struct {
		req  *ScopeRequirement
		want bool
	}{
		{RequireScopes("read create", ScopeAnd), true},
		{RequireScopes("read delete", ScopeAnd), false},
		{RequireScopes("read delete", ""), false},
		{RequireScopes("delete create", ScopeOr), true},
		{RequireScopes("delete update", "or"), false},
		{RequireScopes("", ScopeAnd), true},
	}
	for i, tc := range cases {
		if got := tc.req.SatisfiedBy(actor); got != tc.want {
			t.Errorf("case %d (%v %s): got %v want %v", i, tc.req.Scopes, tc.req.Operator, got, tc.want)
		}
	}
}

func TestPermissionRequirement(t *testing.T) {
	actor := Actor{ID: "1", Permissions: []string{"can_view"}}
	if !(PermissionRequirement{}).SatisfiedBy(actor) {
		t.Fatalf("empty requirement should pass")
	}
	if !(PermissionRequirement{"can_create", "can_view"}).SatisfiedBy(actor) {
		t.Fatalf("intersecting requirement should pass")
	}
	if (PermissionRequirement{"can_delete"}).SatisfiedBy(actor) {
		t.Fatalf("disjoint requirement should fail")
	}
}

func TestActorExpiry(t *testing.T) {
	now := time.Now()
	if (Actor{}).Expired(now) {
		t.Fatalf("zero expiry never expires")
	}
	if !(Actor{ExpiresAt: now}).Expired(now) {
		t.Fatalf("expiry at now should be expired")
	}
	if !Anonymous.IsAnonymous() || (Actor{ID: "x"}).IsAnonymous() {
		t.Fatalf("anonymous detection wrong")
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := fmt.Errorf("insert: %w", StorageError("insert", cause))
	if ErrorCode(wrapped) != EStorage {
		t.Fatalf("expected storage code, got %q", ErrorCode(wrapped))
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("cause lost in chain")
	}
	if ErrorCode(nil) != "" || ErrorCode(cause) != EInternal {
		t.Fatalf("unexpected codes for nil/uncoded")
	}
	if ErrorMessage(cause) != "An internal error has occurred" {
		t.Fatalf("unexpected uncoded message")
	}
	nested := &Error{Err: NotFound("Record doesn't exist")}
	if ErrorCode(nested) != ENotFound || ErrorMessage(nested) != "Record doesn't exist" {
		t.Fatalf("nested error not classified: %q %q", ErrorCode(nested), ErrorMessage(nested))
	}
	if got := (&Error{Code: EConflict}).Error(); got != "<conflict>" {
		t.Fatalf("unexpected bare error text %q", got)
	}
	if got := StorageError("op", cause).Error(); got != "storage failure: disk full" {
		t.Fatalf("unexpected error text %q", got)
	}
	if !IsCode(ValidationError("x"), EInvalid) || IsCode(nil, EInvalid) {
		t.Fatalf("IsCode mismatch")
	}
}

func TestHTTPStatus(t *testing.T) {
	want := map[string]int{
		EUnauthenticated:   http.StatusUnauthorized,
		EInsufficientScope: http.StatusForbidden,
		EAccessDenied:      http.StatusForbidden,
		EInvalid:           http.StatusBadRequest,
		ENotFound:          http.StatusNotFound,
		EConflict:          http.StatusConflict,
		EStorage:           http.StatusInternalServerError,
		"bogus":            http.StatusInternalServerError,
	}
	for code, status := range want {
		if got := HTTPStatus(code); got != status {
			t.Errorf("%s: got %d want %d", code, got, status)
		}
	}
}
