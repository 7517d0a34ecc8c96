package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultLogLevel            = "info"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultPersistenceDriver   = DriverFirestore
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultCurrency            = "JPY"
	defaultTaxRateBasisPoints  = 1000
	defaultShippingFee         = 800
	defaultFreeShippingFrom    = 10000
	defaultSignedURLTTL        = 15 * time.Minute
	defaultMaxUploadBytes      = 50 << 20
	defaultUploadStaleAfter    = 7 * 24 * time.Hour
	defaultAdminTokenTTL       = 12 * time.Hour
	defaultAdminIssuer         = "acrylicworks-admin"
	defaultSMTPPort            = 587
	defaultEventsDriver        = EventsDriverNone
	defaultEventsTopic         = "order-events"
	defaultSearchIndex         = "products"
)

// Persistence drivers.
const (
	DriverFirestore = "firestore"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

// Order event drivers.
const (
	EventsDriverNone   = "none"
	EventsDriverPubSub = "pubsub"
	EventsDriverKafka  = "kafka"
)

var defaultAllowedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/svg+xml",
	"application/pdf",
	"application/postscript",
}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Persistence   PersistenceConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	PSP           PSPConfig
	Checkout      CheckoutConfig
	Notifications NotificationConfig
	Events        EventsConfig
	Search        SearchConfig
	AdminAuth     AdminAuthConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PersistenceConfig selects the repository backend.
type PersistenceConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig describes the upload bucket and presigned URL policy.
type StorageConfig struct {
	UploadsBucket       string
	SignerKey           string
	SignerKeyFile       string
	SignedURLTTL        time.Duration
	MaxUploadBytes      int64
	AllowedMimeTypes    []string
	StalePendingUploads time.Duration
}

// PSPConfig collects secrets for the payment provider.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
}

// CheckoutConfig controls pricing applied when orders are created.
type CheckoutConfig struct {
	Currency              string
	TaxRateBasisPoints    int64
	ShippingFee           int64
	FreeShippingThreshold int64
}

// NotificationConfig configures outbound customer email.
type NotificationConfig struct {
	Enabled       bool
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	FromAddress   string
	StorefrontURL string
}

// EventsConfig selects where order lifecycle events are published.
type EventsConfig struct {
	Driver          string
	PubSubProjectID string
	Topic           string
	KafkaBrokers    []string
}

// SearchConfig configures the product search cluster.
type SearchConfig struct {
	Enabled      bool
	Addresses    []string
	Username     string
	Password     string
	ProductIndex string
}

// AdminAuthConfig configures back office session tokens.
type AdminAuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal endpoints.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			LogLevel:     strings.ToLower(stringWithDefault(lookup, "API_LOG_LEVEL", defaultLogLevel)),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Persistence: PersistenceConfig{
			Driver:      strings.ToLower(stringWithDefault(lookup, "API_PERSISTENCE_DRIVER", defaultPersistenceDriver)),
			DSN:         stringWithDefault(lookup, "API_PERSISTENCE_DSN", ""),
			AutoMigrate: boolWithDefault(lookup, "API_PERSISTENCE_AUTO_MIGRATE", false),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			UploadsBucket:       stringWithDefault(lookup, "API_STORAGE_UPLOADS_BUCKET", ""),
			SignerKey:           stringWithDefault(lookup, "API_STORAGE_SIGNER_KEY", ""),
			SignerKeyFile:       stringWithDefault(lookup, "API_STORAGE_SIGNER_KEY_FILE", ""),
			SignedURLTTL:        durationWithDefault(lookup, "API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			MaxUploadBytes:      int64WithDefault(lookup, "API_STORAGE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
			AllowedMimeTypes:    csvWithDefault(lookup, "API_STORAGE_ALLOWED_MIME_TYPES", defaultAllowedMimeTypes),
			StalePendingUploads: durationWithDefault(lookup, "API_STORAGE_STALE_PENDING_AFTER", defaultUploadStaleAfter),
		},
		PSP: PSPConfig{
			StripeAPIKey:        stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "API_PSP_STRIPE_WEBHOOK_SECRET", ""),
		},
		Checkout: CheckoutConfig{
			Currency:              strings.ToUpper(stringWithDefault(lookup, "API_CHECKOUT_CURRENCY", defaultCurrency)),
			TaxRateBasisPoints:    int64WithDefault(lookup, "API_CHECKOUT_TAX_RATE_BPS", defaultTaxRateBasisPoints),
			ShippingFee:           int64WithDefault(lookup, "API_CHECKOUT_SHIPPING_FEE", defaultShippingFee),
			FreeShippingThreshold: int64WithDefault(lookup, "API_CHECKOUT_FREE_SHIPPING_FROM", defaultFreeShippingFrom),
		},
		Notifications: NotificationConfig{
			Enabled:       boolWithDefault(lookup, "API_NOTIFY_ENABLED", false),
			SMTPHost:      stringWithDefault(lookup, "API_NOTIFY_SMTP_HOST", ""),
			SMTPPort:      intWithDefault(lookup, "API_NOTIFY_SMTP_PORT", defaultSMTPPort),
			SMTPUsername:  stringWithDefault(lookup, "API_NOTIFY_SMTP_USERNAME", ""),
			SMTPPassword:  stringWithDefault(lookup, "API_NOTIFY_SMTP_PASSWORD", ""),
			FromAddress:   stringWithDefault(lookup, "API_NOTIFY_FROM_ADDRESS", ""),
			StorefrontURL: stringWithDefault(lookup, "API_NOTIFY_STOREFRONT_URL", ""),
		},
		Events: EventsConfig{
			Driver:          strings.ToLower(stringWithDefault(lookup, "API_EVENTS_DRIVER", defaultEventsDriver)),
			PubSubProjectID: stringWithDefault(lookup, "API_EVENTS_PUBSUB_PROJECT_ID", ""),
			Topic:           stringWithDefault(lookup, "API_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers:    csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS", nil),
		},
		Search: SearchConfig{
			Enabled:      boolWithDefault(lookup, "API_SEARCH_ENABLED", false),
			Addresses:    csvWithDefault(lookup, "API_SEARCH_ADDRESSES", nil),
			Username:     stringWithDefault(lookup, "API_SEARCH_USERNAME", ""),
			Password:     stringWithDefault(lookup, "API_SEARCH_PASSWORD", ""),
			ProductIndex: stringWithDefault(lookup, "API_SEARCH_PRODUCT_INDEX", defaultSearchIndex),
		},
		AdminAuth: AdminAuthConfig{
			JWTSecret: stringWithDefault(lookup, "API_ADMIN_JWT_SECRET", ""),
			TokenTTL:  durationWithDefault(lookup, "API_ADMIN_TOKEN_TTL", defaultAdminTokenTTL),
			Issuer:    stringWithDefault(lookup, "API_ADMIN_TOKEN_ISSUER", defaultAdminIssuer),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS", []string{defaultSecurityIssuer}),
			},
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.PubSubProjectID == "" {
		cfg.Events.PubSubProjectID = cfg.Firebase.ProjectID
	}

	secretFields := []*string{
		&cfg.Persistence.DSN,
		&cfg.Storage.SignerKey,
		&cfg.PSP.StripeAPIKey,
		&cfg.PSP.StripeWebhookSecret,
		&cfg.Notifications.SMTPPassword,
		&cfg.Search.Password,
		&cfg.AdminAuth.JWTSecret,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	switch cfg.Persistence.Driver {
	case DriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case DriverPostgres, DriverSQLite:
		if cfg.Persistence.DSN == "" {
			missing = append(missing, "Persistence.DSN")
		}
	default:
		missing = append(missing, "Persistence.Driver")
	}
	if cfg.Storage.UploadsBucket == "" {
		missing = append(missing, "Storage.UploadsBucket")
	}
	if cfg.Storage.SignedURLTTL <= 0 {
		missing = append(missing, "Storage.SignedURLTTL")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		missing = append(missing, "Storage.MaxUploadBytes")
	}
	if len(cfg.Checkout.Currency) != 3 {
		missing = append(missing, "Checkout.Currency")
	}
	if cfg.Checkout.TaxRateBasisPoints < 0 || cfg.Checkout.ShippingFee < 0 {
		missing = append(missing, "Checkout")
	}
	if cfg.Notifications.Enabled {
		if cfg.Notifications.SMTPHost == "" {
			missing = append(missing, "Notifications.SMTPHost")
		}
		if cfg.Notifications.FromAddress == "" {
			missing = append(missing, "Notifications.FromAddress")
		}
	}
	switch cfg.Events.Driver {
	case EventsDriverNone:
	case EventsDriverPubSub:
		if cfg.Events.PubSubProjectID == "" {
			missing = append(missing, "Events.PubSubProjectID")
		}
	case EventsDriverKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
	default:
		missing = append(missing, "Events.Driver")
	}
	if cfg.Search.Enabled && len(cfg.Search.Addresses) == 0 {
		missing = append(missing, "Search.Addresses")
	}
	if cfg.AdminAuth.JWTSecret == "" {
		missing = append(missing, "AdminAuth.JWTSecret")
	}
	if cfg.AdminAuth.TokenTTL <= 0 {
		missing = append(missing, "AdminAuth.TokenTTL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return append([]string(nil), fallback...)
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
