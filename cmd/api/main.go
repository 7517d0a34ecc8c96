package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/acrylicworks/api/internal/di"
	"github.com/acrylicworks/api/internal/handlers"
	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/config"
	"github.com/acrylicworks/api/internal/platform/events"
	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
	"github.com/acrylicworks/api/internal/platform/idempotency"
	"github.com/acrylicworks/api/internal/platform/notifications"
	"github.com/acrylicworks/api/internal/platform/observability"
	"github.com/acrylicworks/api/internal/platform/search"
	"github.com/acrylicworks/api/internal/platform/secrets"
	platformstorage "github.com/acrylicworks/api/internal/platform/storage"
	"github.com/acrylicworks/api/internal/repositories"
	firestoreRepo "github.com/acrylicworks/api/internal/repositories/firestore"
	"github.com/acrylicworks/api/internal/repositories/sqlstore"
	"github.com/acrylicworks/api/internal/services"
)

const idempotencyCollection = "idempotency_keys"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	// The config loader needs the secret fetcher, which needs a logger, so the process logger
	// is configured from the raw environment.
	baseLogger, err := observability.NewLogger(os.Getenv("API_LOG_LEVEL"), envOr("API_SECURITY_ENVIRONMENT", "local"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	// .env values are only visible through config; rebuild with the resolved level.
	if configured, err := observability.NewLogger(cfg.Server.LogLevel, cfg.Security.Environment); err == nil {
		_ = baseLogger.Sync()
		baseLogger = configured
		logger = baseLogger.Named("api")
	}

	buildInfo := services.BuildInfo{
		Version:     envOr("API_BUILD_VERSION", "dev"),
		Environment: cfg.Security.Environment,
		StartedAt:   startedAt,
	}
	eventLogger := observability.EventLogger(logger.Named("services"))
	clientOpts := googleClientOptions(cfg)

	var closers []func(context.Context) error

	// Search is optional and doubles as a readiness probe when enabled.
	var (
		searcher    services.ProductSearcher
		extraChecks []repositories.DependencyCheck
	)
	extraChecks = append(extraChecks, secretManagerCheck(fetcher))
	if cfg.Search.Enabled {
		esClient, err := search.NewClient(cfg.Search)
		if err != nil {
			logger.Fatal("failed to initialise search client", zap.Error(err))
		}
		index, err := search.NewProductIndex(esClient, cfg.Search.ProductIndex)
		if err != nil {
			logger.Fatal("failed to initialise product index", zap.Error(err))
		}
		searcher = index
		extraChecks = append(extraChecks, elasticsearchCheck(esClient))
	} else {
		logger.Info("search disabled; product search falls back to the repository")
	}

	registry, idempotencyStore, err := openRegistry(ctx, cfg, clientOpts, extraChecks)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.String("driver", cfg.Persistence.Driver), zap.Error(err))
	}

	in := di.Integrations{
		Searcher: searcher,
		Logger:   eventLogger,
		Build:    buildInfo,
	}

	signer, err := loadStorageSigner(cfg.Storage)
	switch {
	case err != nil:
		logger.Fatal("failed to parse storage signer key", zap.Error(err))
	case signer == nil:
		logger.Warn("storage signer key not configured; upload routes will be unavailable")
	default:
		signedURLClient, err := platformstorage.NewClient(signer)
		if err != nil {
			logger.Fatal("failed to initialise signed url client", zap.Error(err))
		}
		in.Signer = signedURLClient

		storageClient, err := cloudstorage.NewClient(ctx, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		closers = append(closers, func(context.Context) error { return storageClient.Close() })
		objects, err := platformstorage.NewObjects(storageClient)
		if err != nil {
			logger.Fatal("failed to initialise storage objects", zap.Error(err))
		}
		in.Objects = objects
	}

	var webhookParser handlers.EventParser
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: payments.StripeLogger(observability.EventLogger(logger.Named("payments"))),
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
		}
		in.Payments = provider
	} else {
		logger.Warn("stripe api key not configured; checkout will be unavailable")
	}
	if secret := strings.TrimSpace(cfg.PSP.StripeWebhookSecret); secret != "" {
		verifier, err := payments.NewWebhookVerifier(secret)
		if err != nil {
			logger.Fatal("failed to initialise stripe webhook verifier", zap.Error(err))
		}
		webhookParser = verifier
	} else {
		logger.Warn("stripe webhook secret not configured; webhooks will be rejected")
	}

	publisher, closePublisher, err := newEventPublisher(ctx, cfg.Events, clientOpts)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.String("driver", cfg.Events.Driver), zap.Error(err))
	}
	in.Events = publisher
	if closePublisher != nil {
		closers = append(closers, closePublisher)
	}

	if cfg.Notifications.Enabled {
		sender, err := notifications.NewSMTPSender(cfg.Notifications)
		if err != nil {
			logger.Fatal("failed to initialise smtp client", zap.String("host", cfg.Notifications.SMTPHost), zap.Error(err))
		}
		mailer, err := notifications.NewMailer(sender, cfg.Notifications)
		if err != nil {
			logger.Fatal("failed to initialise mailer", zap.Error(err))
		}
		in.Notifier = mailer
	}

	sessions, err := auth.NewAdminSessions(cfg.AdminAuth.JWTSecret, cfg.AdminAuth.TokenTTL, cfg.AdminAuth.Issuer)
	if err != nil {
		logger.Fatal("failed to initialise admin sessions", zap.Error(err))
	}
	in.Tokens = sessions

	container, err := di.NewContainer(ctx, cfg, registry, in)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	for _, closer := range closers {
		container.OnClose(closer)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()
	svc := container.Services

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authn := auth.NewCustomerAuthenticator(firebaseVerifier)

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	metrics, err := observability.NewHTTPMetrics()
	if err != nil {
		logger.Warn("http metrics unavailable", zap.Error(err))
	}
	httpLogger := logger.Named("http")
	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware(projectID),
		observability.RequestLoggerMiddleware(httpLogger, metrics),
		observability.RecoveryMiddleware(httpLogger),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	meRoutes := handlers.Registrars(
		handlers.NewMeHandlers(authn, svc.Customers).Routes,
		handlers.NewCartHandlers(authn, svc.Cart).Routes,
		handlers.NewCheckoutHandlers(authn, svc.Checkout,
			handlers.WithCheckoutCustomers(svc.Customers),
			handlers.WithCheckoutIdempotency(idempotencyMiddleware),
		).Routes,
		handlers.NewOrderHandlers(authn, svc.Orders).Routes,
		handlers.NewUploadHandlers(authn, svc.Uploads).Routes,
	)
	adminRoutes := handlers.Registrars(
		handlers.NewAdminHandlers(sessions, svc.Admins).Routes,
		handlers.NewAdminCatalogHandlers(sessions, svc.Catalog).Routes,
		handlers.NewAdminCustomerHandlers(sessions, svc.Customers).Routes,
		handlers.NewAdminOrderHandlers(sessions, svc.Orders, svc.Uploads).Routes,
		handlers.NewAdminUploadHandlers(sessions, svc.Uploads).Routes,
		handlers.NewAdminDashboardHandlers(sessions, svc.Dashboard).Routes,
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(handlers.NewProductHandlers(svc.Catalog).Routes),
		handlers.WithMeRoutes(meRoutes),
		handlers.WithAdminRoutes(adminRoutes),
		handlers.WithWebhookRoutes(handlers.NewPaymentWebhookHandlers(webhookParser, svc.Payments).Routes),
		handlers.WithInternalRoutes(handlers.NewInternalJobHandlers(svc.Uploads).Routes),
	}
	if oidc := buildOIDCMiddleware(logger.Named("auth"), cfg); oidc != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidc))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("acrylicworks api listening",
			zap.String("version", buildInfo.Version),
			zap.String("persistence", cfg.Persistence.Driver),
			zap.String("events", cfg.Events.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openRegistry selects the repository backend and the idempotency store living next to it.
func openRegistry(ctx context.Context, cfg config.Config, clientOpts []option.ClientOption, checks []repositories.DependencyCheck) (repositories.Registry, idempotency.Store, error) {
	switch cfg.Persistence.Driver {
	case config.DriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))
		client, err := provider.Client(ctx)
		if err != nil {
			return nil, nil, err
		}
		reg, err := firestoreRepo.NewRegistry(provider, checks...)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, err
		}
		return reg, idempotency.NewFirestoreStore(client, idempotencyCollection), nil
	case config.DriverPostgres, config.DriverSQLite:
		db, err := sqlstore.Open(cfg.Persistence)
		if err != nil {
			return nil, nil, err
		}
		store, err := idempotency.NewSQLStore(db)
		if err != nil {
			return nil, nil, err
		}
		reg, err := sqlstore.New(db, checks...)
		if err != nil {
			return nil, nil, err
		}
		return reg, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported persistence driver %q", cfg.Persistence.Driver)
	}
}

func newEventPublisher(ctx context.Context, cfg config.EventsConfig, clientOpts []option.ClientOption) (services.OrderEventPublisher, func(context.Context) error, error) {
	switch cfg.Driver {
	case config.EventsDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID, clientOpts...)
		if err != nil {
			return nil, nil, err
		}
		topic := client.Topic(cfg.Topic)
		topic.EnableMessageOrdering = true
		publisher, err := events.NewPubSubPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func(context.Context) error {
			publisher.Stop()
			return client.Close()
		}, nil
	case config.EventsDriverKafka:
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
		if err != nil {
			return nil, nil, err
		}
		return publisher, func(context.Context) error { return publisher.Close() }, nil
	default:
		return events.Noop{}, nil, nil
	}
}

// loadStorageSigner returns nil without error when no key is configured.
func loadStorageSigner(cfg config.StorageConfig) (platformstorage.Signer, error) {
	signer, err := platformstorage.LoadKeySigner(cfg.SignerKey, cfg.SignerKeyFile)
	if errors.Is(err, platformstorage.ErrNoSigningKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return signer, nil
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		logger.Warn("auth: OIDC JWKS url not configured; internal routes are unprotected")
		return nil
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func elasticsearchCheck(client *elasticsearch.Client) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "elasticsearch",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			res, err := client.Ping(client.Ping.WithContext(ctx))
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.IsError() {
				return fmt.Errorf("elasticsearch ping: %s", res.Status())
			}
			return nil
		},
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(envOr("API_SECRET_FALLBACK_FILE", ".secrets.local")),
	}
	project := envOr("API_SECRET_PROJECT_ID", os.Getenv("API_FIREBASE_PROJECT_ID"))
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentials := strings.TrimSpace(os.Getenv("API_FIREBASE_CREDENTIALS_FILE")); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func googleClientOptions(cfg config.Config) []option.ClientOption {
	if path := strings.TrimSpace(cfg.Firebase.CredentialsFile); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}
