package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s stubVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireCustomer(t *testing.T) {
	verified := &firebaseauth.Token{
		UID: "user-1",
		Claims: map[string]any{
			"email": "hana@example.com",
			"name":  " Hana ",
			"role":  []any{"Tester", ""},
		},
	}

	t.Run("missing header", func(t *testing.T) {
		handler := NewCustomerAuthenticator(stubVerifier{token: verified}).RequireCustomer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("handler must not run")
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("verification failure", func(t *testing.T) {
		handler := NewCustomerAuthenticator(stubVerifier{err: errors.New("bad token")}).RequireCustomer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("handler must not run")
		}))
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("verified", func(t *testing.T) {
		var identity *Identity
		handler := NewCustomerAuthenticator(stubVerifier{token: verified}).RequireCustomer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ = IdentityFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "bearer abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if identity == nil || identity.UID != "user-1" || identity.Email != "hana@example.com" || identity.Name != "Hana" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if !identity.HasRole(RoleUser) || !identity.HasRole("tester") || identity.IsStaff() {
			t.Fatalf("unexpected roles %v", identity.Roles)
		}
	})
}

func TestRolesFromClaim(t *testing.T) {
	got := rolesFromClaim(map[string]any{"staff": true, "admin": false})
	if len(got) != 1 || got[0] != "staff" {
		t.Fatalf("unexpected roles %v", got)
	}
	if got := rolesFromClaim(" Admin "); len(got) != 1 || got[0] != "admin" {
		t.Fatalf("unexpected roles %v", got)
	}
	if got := rolesFromClaim(42); len(got) != 0 {
		t.Fatalf("expected no roles, got %v", got)
	}
}
