package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
	"github.com/acrylicworks/api/internal/repositories"
)

// Registry wires every Firestore repository against one shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	uploads   *UploadRepository
	products  *ProductRepository
	carts     *CartRepository
	customers *CustomerRepository
	admins    *AdminRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the Firestore registry. Extra checks are probed alongside Firestore on readiness.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.uploads, err = NewUploadRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.customers, err = NewCustomerRepository(provider); err != nil {
		return nil, err
	}
	if reg.admins, err = NewAdminRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, extraChecks...)
	if reg.health, err = repositories.NewDependencyHealthRepository(checks); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Uploads() repositories.UploadRepository     { return r.uploads }
func (r *Registry) Products() repositories.ProductRepository   { return r.products }
func (r *Registry) Carts() repositories.CartRepository         { return r.carts }
func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }
func (r *Registry) Admins() repositories.AdminRepository       { return r.admins }
func (r *Registry) Counters() repositories.CounterRepository   { return r.counters }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

// RunInTx runs fn in a Firestore transaction. Repository calls made with the ctx passed
// to fn join it; reads must precede writes.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}
