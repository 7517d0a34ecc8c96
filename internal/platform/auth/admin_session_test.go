package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
)

const testAdminSecret = "0123456789abcdef0123456789abcdef"

func newTestSessions(t *testing.T, now *time.Time) *AdminSessions {
	t.Helper()
	sessions, err := NewAdminSessions(testAdminSecret, time.Hour, "", WithAdminSessionClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewAdminSessions: %v", err)
	}
	return sessions
}

func TestNewAdminSessionsRejectsShortSecret(t *testing.T) {
	if _, err := NewAdminSessions("short", time.Hour, ""); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestAdminSessionsRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := newTestSessions(t, &now)

	token, expiresAt, err := sessions.IssueAdminToken(domain.Admin{ID: "adm_1", Email: "ops@acrylic.test", Name: "Ops", Role: domain.AdminRoleSuper})
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	identity, err := sessions.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UID != "adm_1" || identity.Provider != ProviderAdmin {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if !identity.HasRole(RoleStaff) || !identity.HasRole(RoleAdmin) || !identity.IsStaff() {
		t.Fatalf("super admin should carry staff and admin roles, got %v", identity.Roles)
	}

	staffToken, _, err := sessions.IssueAdminToken(domain.Admin{ID: "adm_2", Role: domain.AdminRoleStaff})
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	staff, err := sessions.Verify(staffToken)
	if err != nil {
		t.Fatalf("Verify staff: %v", err)
	}
	if staff.HasRole(RoleAdmin) {
		t.Fatalf("staff must not carry admin role")
	}
}

func TestAdminSessionsVerifyFailures(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := newTestSessions(t, &now)
	token, _, err := sessions.IssueAdminToken(domain.Admin{ID: "adm_1", Role: domain.AdminRoleStaff})
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}

	if _, err := sessions.Verify(token + "x"); !errors.Is(err, ErrAdminTokenInvalid) {
		t.Fatalf("expected ErrAdminTokenInvalid for tampered token, got %v", err)
	}

	other, err := NewAdminSessions(strings.Repeat("z", 32), time.Hour, "")
	if err != nil {
		t.Fatalf("NewAdminSessions: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrAdminTokenInvalid) {
		t.Fatalf("expected ErrAdminTokenInvalid for foreign secret, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := sessions.Verify(token); !errors.Is(err, ErrAdminTokenExpired) {
		t.Fatalf("expected ErrAdminTokenExpired, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	now := time.Now()
	sessions := newTestSessions(t, &now)
	staffToken, _, _ := sessions.IssueAdminToken(domain.Admin{ID: "adm_staff", Role: domain.AdminRoleStaff})
	superToken, _, _ := sessions.IssueAdminToken(domain.Admin{ID: "adm_super", Role: domain.AdminRoleSuper})

	cases := []struct {
		name   string
		roles  []string
		header string
		want   int
	}{
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "staff on staff route", roles: []string{RoleStaff}, header: "Bearer " + staffToken, want: http.StatusOK},
		{name: "staff on admin route", roles: []string{RoleAdmin}, header: "Bearer " + staffToken, want: http.StatusForbidden},
		{name: "super on admin route", roles: []string{RoleAdmin}, header: "Bearer " + superToken, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := sessions.RequireAdmin(tc.roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := IdentityFromContext(r.Context()); !ok {
					t.Fatalf("identity missing from context")
				}
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
