package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/config"
	"github.com/acrylicworks/api/internal/repositories"
	"github.com/acrylicworks/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer. A nil field means the backing
// integration is not configured and the matching routes answer 503.
type Services struct {
	Orders      services.OrderService
	Uploads     services.UploadService
	Coordinator services.UploadReviewCoordinator
	Payments    services.PaymentEventHandler
	Checkout    services.CheckoutService
	Cart        services.CartService
	Catalog     services.CatalogService
	Customers   services.CustomerService
	Admins      services.AdminService
	Dashboard   services.DashboardService
	System      services.SystemService
}

// Integrations carries the adapters built in main. Every field is optional; services that
// cannot run without one are left nil.
type Integrations struct {
	Payments payments.Provider
	Signer   services.UploadURLSigner
	Objects  services.UploadObjectRemover
	Events   services.OrderEventPublisher
	Notifier services.OrderNotifier
	Searcher services.ProductSearcher
	Tokens   services.AdminTokenIssuer
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Build    services.BuildInfo
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// NewContainer constructs the runtime dependencies. Production wiring supplies the Firestore
// or SQL registry, while tests can use the sqlite store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, in Integrations) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, in)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// OnClose registers fn to run before the repositories are closed. Closers run in reverse order.
func (c *Container) OnClose(fn func(context.Context) error) {
	if c == nil || fn == nil {
		return
	}
	c.closers = append(c.closers, fn)
}

// Close releases publishers, clients and finally the repository registry.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, in Integrations) (Services, error) {
	var svc Services

	clock := in.Clock
	if clock == nil {
		clock = time.Now
	}

	coordinator, err := services.NewUploadReviewCoordinator(services.UploadReviewCoordinatorDeps{
		Orders:  reg.Orders(),
		Uploads: reg.Uploads(),
		Clock:   clock,
		Logger:  in.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build upload review coordinator: %w", err)
	}
	svc.Coordinator = coordinator

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Coordinator: coordinator,
		UnitOfWork:  reg,
		Clock:       clock,
		Events:      in.Events,
		Logger:      in.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if in.Signer != nil {
		uploadSvc, err := services.NewUploadService(services.UploadServiceDeps{
			Uploads:          reg.Uploads(),
			Orders:           reg.Orders(),
			Coordinator:      coordinator,
			Signer:           in.Signer,
			Objects:          in.Objects,
			Bucket:           cfg.Storage.UploadsBucket,
			MaxSize:          cfg.Storage.MaxUploadBytes,
			AllowedMimeTypes: cfg.Storage.AllowedMimeTypes,
			URLTTL:           cfg.Storage.SignedURLTTL,
			StaleAfter:       cfg.Storage.StalePendingUploads,
			UnitOfWork:       reg,
			Clock:            clock,
			Events:           in.Events,
			Logger:           in.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build upload service: %w", err)
		}
		svc.Uploads = uploadSvc
	}

	paymentHandler, err := services.NewPaymentEventHandler(services.PaymentEventHandlerDeps{
		Orders:      reg.Orders(),
		Customers:   reg.Customers(),
		Coordinator: coordinator,
		Notifier:    in.Notifier,
		UnitOfWork:  reg,
		Clock:       clock,
		Events:      in.Events,
		Logger:      in.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment event handler: %w", err)
	}
	svc.Payments = paymentHandler

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Searcher: in.Searcher,
		Currency: cfg.Checkout.Currency,
		Clock:    clock,
		Logger:   in.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Currency: cfg.Checkout.Currency,
		Clock:    clock,
		Logger:   in.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	if in.Payments != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Carts:    reg.Carts(),
			Products: reg.Products(),
			Orders:   reg.Orders(),
			Uploads:  reg.Uploads(),
			Counters: reg.Counters(),
			Payments: in.Payments,
			Pricing: services.PricingPolicy{
				Currency:              cfg.Checkout.Currency,
				TaxRateBasisPoints:    cfg.Checkout.TaxRateBasisPoints,
				ShippingFee:           cfg.Checkout.ShippingFee,
				FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
			},
			UnitOfWork: reg,
			Clock:      clock,
			Events:     in.Events,
			Logger:     in.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	customerSvc, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers: reg.Customers(),
		Clock:     clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer service: %w", err)
	}
	svc.Customers = customerSvc

	if in.Tokens != nil {
		adminSvc, err := services.NewAdminService(services.AdminServiceDeps{
			Admins: reg.Admins(),
			Tokens: in.Tokens,
			Clock:  clock,
			Logger: in.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build admin service: %w", err)
		}
		svc.Admins = adminSvc
	}

	dashboardSvc, err := services.NewDashboardService(services.DashboardServiceDeps{
		Orders:    reg.Orders(),
		Uploads:   reg.Uploads(),
		Customers: reg.Customers(),
		Currency:  cfg.Checkout.Currency,
		Clock:     clock,
		Logger:    in.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build dashboard service: %w", err)
	}
	svc.Dashboard = dashboardSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := in.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
