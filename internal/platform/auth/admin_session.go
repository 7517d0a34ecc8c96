package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	domain "github.com/acrylicworks/api/internal/domain"
)

const (
	defaultAdminTokenTTL    = 8 * time.Hour
	defaultAdminTokenIssuer = "acrylic-admin"
	minAdminSecretLength    = 32
)

var (
	// ErrAdminTokenInvalid indicates the session token failed verification.
	ErrAdminTokenInvalid = errors.New("auth: admin token invalid")
	// ErrAdminTokenExpired indicates the session token is past its expiry.
	ErrAdminTokenExpired = errors.New("auth: admin token expired")
)

// adminClaims are the claims carried by back office session tokens.
type adminClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AdminSessions issues and verifies HS256 back office session tokens.
type AdminSessions struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// AdminSessionOption customises AdminSessions.
type AdminSessionOption func(*AdminSessions)

// WithAdminSessionClock injects a custom clock.
func WithAdminSessionClock(now func() time.Time) AdminSessionOption {
	return func(s *AdminSessions) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAdminSessions validates the signing secret and returns the token service.
func NewAdminSessions(secret string, ttl time.Duration, issuer string, opts ...AdminSessionOption) (*AdminSessions, error) {
	if len(secret) < minAdminSecretLength {
		return nil, fmt.Errorf("auth: admin session secret must be at least %d bytes", minAdminSecretLength)
	}
	if ttl <= 0 {
		ttl = defaultAdminTokenTTL
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultAdminTokenIssuer
	}
	s := &AdminSessions{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// IssueAdminToken signs a session for admin.
func (s *AdminSessions) IssueAdminToken(admin domain.Admin) (string, time.Time, error) {
	if strings.TrimSpace(admin.ID) == "" {
		return "", time.Time{}, errors.New("auth: admin id is required")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := adminClaims{
		Email: admin.Email,
		Name:  admin.Name,
		Role:  string(admin.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   admin.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign admin token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses a session token into a back office identity. Super admins carry RoleAdmin in
// addition to RoleStaff.
func (s *AdminSessions) Verify(token string) (*Identity, error) {
	claims := &adminClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdminTokenInvalid, err)
	}
	now := s.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrAdminTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrAdminTokenInvalid)
	}
	if claims.Issuer != s.issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: unexpected issuer or subject", ErrAdminTokenInvalid)
	}

	roles := []string{RoleStaff}
	switch domain.AdminRole(claims.Role) {
	case domain.AdminRoleStaff:
	case domain.AdminRoleSuper:
		roles = append(roles, RoleAdmin)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrAdminTokenInvalid, claims.Role)
	}
	return &Identity{
		UID:      claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Roles:    roles,
		Provider: ProviderAdmin,
	}, nil
}

// RequireAdmin verifies the bearer session token. When roles are given the identity must hold
// at least one of them.
func (s *AdminSessions) RequireAdmin(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if s == nil {
				respondAuthError(w, r, http.StatusServiceUnavailable, "verification_unavailable", "admin sessions not configured")
				return
			}
			identity, err := s.Verify(tokenStr)
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, ErrAdminTokenExpired) {
					code = "token_expired"
				}
				respondAuthError(w, r, http.StatusUnauthorized, code, "admin session verification failed")
				return
			}
			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				respondAuthError(w, r, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
