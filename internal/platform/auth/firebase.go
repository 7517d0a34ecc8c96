package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/acrylicworks/api/internal/platform/config"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// NewFirebaseVerifier initialises the Firebase Admin SDK and returns its auth client.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*firebaseauth.Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return client, nil
}

// CustomerAuthenticator turns Firebase ID tokens into storefront identities.
type CustomerAuthenticator struct {
	verifier  TokenVerifier
	roleClaim string
	timeout   time.Duration
}

// CustomerOption customises CustomerAuthenticator behaviour.
type CustomerOption func(*CustomerAuthenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) CustomerOption {
	return func(a *CustomerAuthenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds token verification.
func WithVerificationTimeout(d time.Duration) CustomerOption {
	return func(a *CustomerAuthenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewCustomerAuthenticator constructs the storefront middleware factory.
func NewCustomerAuthenticator(verifier TokenVerifier, opts ...CustomerOption) *CustomerAuthenticator {
	a := &CustomerAuthenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireCustomer verifies the bearer ID token. Every verified user gets RoleUser plus whatever
// the role claim lists.
func (a *CustomerAuthenticator) RequireCustomer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, r, http.StatusServiceUnavailable, "verification_unavailable", "authorization service unavailable")
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
			token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
			cancel()
			if err != nil {
				if firebaseauth.IsIDTokenExpired(err) {
					respondAuthError(w, r, http.StatusUnauthorized, "token_expired", "firebase id token expired")
					return
				}
				respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "firebase id token verification failed")
				return
			}

			identity := &Identity{
				UID:      token.UID,
				Email:    claimAsString(token.Claims, "email"),
				Name:     claimAsString(token.Claims, "name"),
				Roles:    appendRole(rolesFromClaim(token.Claims[a.roleClaim]), RoleUser),
				Provider: ProviderFirebase,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func rolesFromClaim(raw any) []string {
	var roles []string
	switch v := raw.(type) {
	case string:
		roles = appendRole(roles, v)
	case []string:
		for _, item := range v {
			roles = appendRole(roles, item)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = appendRole(roles, s)
			}
		}
	case map[string]any:
		for key, value := range v {
			if enabled, ok := value.(bool); ok && enabled {
				roles = appendRole(roles, key)
			}
		}
	}
	return roles
}

func appendRole(roles []string, role string) []string {
	role = normaliseRole(role)
	if role == "" {
		return roles
	}
	for _, existing := range roles {
		if existing == role {
			return roles
		}
	}
	return append(roles, role)
}

func claimAsString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}
