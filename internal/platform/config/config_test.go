package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":    "acrylic-dev",
		"API_STORAGE_UPLOADS_BUCKET": "acrylic-uploads-dev",
		"API_ADMIN_JWT_SECRET":       "dev-secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("expected info log level, got %s", cfg.Server.LogLevel)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Persistence.Driver != DriverFirestore {
		t.Errorf("expected firestore driver, got %s", cfg.Persistence.Driver)
	}
	if cfg.Firestore.ProjectID != "acrylic-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Checkout.Currency != "JPY" {
		t.Errorf("expected JPY, got %s", cfg.Checkout.Currency)
	}
	if cfg.Checkout.TaxRateBasisPoints != defaultTaxRateBasisPoints {
		t.Errorf("unexpected tax rate: %d", cfg.Checkout.TaxRateBasisPoints)
	}
	if len(cfg.Storage.AllowedMimeTypes) != len(defaultAllowedMimeTypes) {
		t.Errorf("expected default mime types, got %v", cfg.Storage.AllowedMimeTypes)
	}
	if cfg.Events.Driver != EventsDriverNone {
		t.Errorf("expected no event driver, got %s", cfg.Events.Driver)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_PERSISTENCE_DRIVER"] = "postgres"
	env["API_PERSISTENCE_DSN"] = "secret://db/dsn"
	env["API_PSP_STRIPE_API_KEY"] = "sm://stripe/api"
	env["API_PSP_STRIPE_WEBHOOK_SECRET"] = "secret://stripe/webhook"
	env["API_ADMIN_JWT_SECRET"] = "secret://admin/jwt"
	env["API_EVENTS_DRIVER"] = "kafka"
	env["API_EVENTS_KAFKA_BROKERS"] = "kafka-1:9092, kafka-2:9092"
	env["API_CHECKOUT_SHIPPING_FEE"] = "1200"
	env["API_STORAGE_ALLOWED_MIME_TYPES"] = "image/png"

	secrets := map[string]string{
		"secret://db/dsn":         "postgres://app@db/acrylic",
		"secret://stripe/api":     "sk_test_123",
		"secret://stripe/webhook": "whsec_123",
		"secret://admin/jwt":      "jwt-signing-key",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Persistence.DSN != "postgres://app@db/acrylic" {
		t.Errorf("expected resolved dsn, got %s", cfg.Persistence.DSN)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" {
		t.Errorf("expected sm:// reference to resolve, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.AdminAuth.JWTSecret != "jwt-signing-key" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.AdminAuth.JWTSecret)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Checkout.ShippingFee != 1200 {
		t.Errorf("expected shipping fee 1200, got %d", cfg.Checkout.ShippingFee)
	}
	if len(cfg.Storage.AllowedMimeTypes) != 1 {
		t.Errorf("expected single mime type, got %v", cfg.Storage.AllowedMimeTypes)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_PERSISTENCE_DRIVER": "sqlite",
		"API_EVENTS_DRIVER":      "carrier-pigeon",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"Firebase.ProjectID":    true,
		"Persistence.DSN":       true,
		"Storage.UploadsBucket": true,
		"Events.Driver":         true,
		"AdminAuth.JWTSecret":   true,
	}
	for _, field := range validation.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("missing expected fields %v in %v", want, validation.Fields())
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := baseEnv()
	env["API_PSP_STRIPE_API_KEY"] = "secret://stripe/api"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "API_FIREBASE_PROJECT_ID=from-file\nAPI_STORAGE_UPLOADS_BUCKET=\"bucket-from-file\"\nexport API_ADMIN_JWT_SECRET=file-secret\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "from-map",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-map" {
		t.Errorf("expected env map to win over .env, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Storage.UploadsBucket != "bucket-from-file" {
		t.Errorf("expected bucket from .env, got %s", cfg.Storage.UploadsBucket)
	}
	if cfg.AdminAuth.JWTSecret != "file-secret" {
		t.Errorf("expected exported value from .env, got %s", cfg.AdminAuth.JWTSecret)
	}
}
