package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/config"
	pstorage "github.com/acrylicworks/api/internal/platform/storage"
	"github.com/acrylicworks/api/internal/repositories/sqlstore"
	"github.com/acrylicworks/api/internal/services"
)

type stubSigner struct{}

func (stubSigner) SignedURL(context.Context, string, string, pstorage.SignedURLOptions) (pstorage.SignedURLResult, error) {
	return pstorage.SignedURLResult{URL: "https://storage.example/signed"}, nil
}

type stubProvider struct{}

func (stubProvider) CreatePaymentIntent(context.Context, payments.PaymentIntentRequest) (payments.PaymentIntent, error) {
	return payments.PaymentIntent{}, nil
}

func (stubProvider) RetrievePaymentIntent(context.Context, string) (payments.PaymentIntent, error) {
	return payments.PaymentIntent{}, nil
}

type stubTokens struct{}

func (stubTokens) IssueAdminToken(services.Admin) (string, time.Time, error) {
	return "token", time.Time{}, nil
}

func testConfig() config.Config {
	return config.Config{
		Storage: config.StorageConfig{
			UploadsBucket:    "acrylic-uploads",
			SignedURLTTL:     15 * time.Minute,
			MaxUploadBytes:   10 << 20,
			AllowedMimeTypes: []string{"image/png"},
		},
		Checkout: config.CheckoutConfig{Currency: "JPY", TaxRateBasisPoints: 1000, ShippingFee: 800},
		Security: config.SecurityConfig{Environment: "test"},
	}
}

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := sqlstore.Open(config.PersistenceConfig{Driver: config.DriverSQLite, DSN: ":memory:", AutoMigrate: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := sqlstore.New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), testConfig(), nil, Integrations{}); err == nil {
		t.Fatalf("expected error for missing registry")
	}
}

func TestNewContainerWithoutIntegrations(t *testing.T) {
	store := newStore(t)
	container, err := NewContainer(context.Background(), testConfig(), store, Integrations{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	svc := container.Services
	if svc.Orders == nil || svc.Coordinator == nil || svc.Payments == nil || svc.Catalog == nil ||
		svc.Cart == nil || svc.Customers == nil || svc.Dashboard == nil || svc.System == nil {
		t.Fatalf("core services should always be built: %#v", svc)
	}
	if svc.Uploads != nil {
		t.Fatalf("uploads need a signer")
	}
	if svc.Checkout != nil {
		t.Fatalf("checkout needs a payment provider")
	}
	if svc.Admins != nil {
		t.Fatalf("admin service needs a token issuer")
	}
}

func TestNewContainerWithIntegrations(t *testing.T) {
	store := newStore(t)
	container, err := NewContainer(context.Background(), testConfig(), store, Integrations{
		Payments: stubProvider{},
		Signer:   stubSigner{},
		Tokens:   stubTokens{},
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	svc := container.Services
	if svc.Uploads == nil || svc.Checkout == nil || svc.Admins == nil {
		t.Fatalf("expected optional services to be built: %#v", svc)
	}

	report, err := svc.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Environment != "test" {
		t.Fatalf("expected environment from config, got %q", report.Environment)
	}
}

func TestContainerCloseRunsClosersInReverse(t *testing.T) {
	store := newStore(t)
	container, err := NewContainer(context.Background(), testConfig(), store, Integrations{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var order []string
	boom := errors.New("kafka writer closed twice")
	container.OnClose(func(context.Context) error {
		order = append(order, "events")
		return nil
	})
	container.OnClose(func(context.Context) error {
		order = append(order, "search")
		return boom
	})

	err = container.Close(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected closer error to surface, got %v", err)
	}
	if len(order) != 2 || order[0] != "search" || order[1] != "events" {
		t.Fatalf("unexpected close order %v", order)
	}
}
