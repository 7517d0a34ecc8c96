package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/acrylicworks/api/internal/platform/config"
	"github.com/acrylicworks/api/internal/repositories"
)

type txContextKey struct{}

// Open connects to the configured SQL database. Postgres is used in production; the pure Go
// sqlite driver backs local runs and tests.
func Open(cfg config.PersistenceConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer; serialise access through one connection.
		sqlDB.SetMaxOpenConns(1)
	}
	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates or updates every table used by the store.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&orderModel{},
		&uploadModel{},
		&productModel{},
		&cartModel{},
		&customerModel{},
		&adminModel{},
		&counterModel{},
	); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// Store implements repositories.Registry on a gorm connection.
type Store struct {
	db     *gorm.DB
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// New wraps an open connection. Extra checks are probed alongside the database on readiness.
func New(db *gorm.DB, extraChecks ...repositories.DependencyCheck) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: db is required")
	}
	s := &Store{db: db}
	checks := append([]repositories.DependencyCheck{{Name: "database", Check: s.ping}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	s.health = health
	return s, nil
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Orders() repositories.OrderRepository       { return &OrderRepository{store: s} }
func (s *Store) Uploads() repositories.UploadRepository     { return &UploadRepository{store: s} }
func (s *Store) Products() repositories.ProductRepository   { return &ProductRepository{store: s} }
func (s *Store) Carts() repositories.CartRepository         { return &CartRepository{store: s} }
func (s *Store) Customers() repositories.CustomerRepository { return &CustomerRepository{store: s} }
func (s *Store) Admins() repositories.AdminRepository       { return &AdminRepository{store: s} }
func (s *Store) Counters() repositories.CounterRepository   { return &CounterRepository{store: s} }
func (s *Store) Health() repositories.HealthRepository      { return s.health }

// RunInTx runs fn in a database transaction carried through ctx. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

// conn returns the transaction bound to ctx or the base connection.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// forUpdate adds a row lock on dialects that support it. Inside a transaction this
// serialises concurrent writers of the same row.
func (s *Store) forUpdate(ctx context.Context) *gorm.DB {
	db := s.conn(ctx)
	if _, inTx := ctx.Value(txContextKey{}).(*gorm.DB); inTx && s.db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (s *Store) ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
