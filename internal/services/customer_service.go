package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/textutil"
	"github.com/acrylicworks/api/internal/repositories"
)

var (
	// ErrCustomerInvalidInput indicates the profile command failed validation.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the profile does not exist.
	ErrCustomerNotFound = errors.New("customer: not found")
)

// CustomerServiceDeps wires the customer profile service.
type CustomerServiceDeps struct {
	Customers repositories.CustomerRepository
	Clock     func() time.Time
}

type customerService struct {
	customers repositories.CustomerRepository
	now       func() time.Time
}

// NewCustomerService constructs the storefront profile service.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &customerService{
		customers: deps.Customers,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// EnsureCustomer creates the profile on first sight of an authenticated user and refreshes the
// email and display name afterwards. Existing phone and address data is kept.
func (s *customerService) EnsureCustomer(ctx context.Context, cmd EnsureCustomerCommand) (Customer, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Customer{}, fmt.Errorf("%w: user id is required", ErrCustomerInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return Customer{}, fmt.Errorf("%w: invalid email", ErrCustomerInvalidInput)
		}
	}

	customer, err := s.customers.FindByID(ctx, userID)
	if err != nil {
		mapped := mapRepositoryError(err, ErrCustomerNotFound, nil)
		if !errors.Is(mapped, ErrCustomerNotFound) {
			return Customer{}, mapped
		}
		customer = Customer{ID: userID}
	}

	name := textutil.SanitizePlainText(cmd.DisplayName)
	changed := customer.CreatedAt.IsZero()
	if email != "" && email != customer.Email {
		customer.Email = email
		changed = true
	}
	if name != "" && name != customer.DisplayName {
		customer.DisplayName = name
		changed = true
	}
	if !changed {
		return customer, nil
	}

	customer.UpdatedAt = s.now()
	saved, err := s.customers.Upsert(ctx, customer)
	if err != nil {
		return Customer{}, mapRepositoryError(err, ErrCustomerNotFound, nil)
	}
	return saved, nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, mapRepositoryError(err, ErrCustomerNotFound, nil)
	}
	return customer, nil
}

func (s *customerService) ListCustomers(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error) {
	filter.Email = strings.ToLower(strings.TrimSpace(filter.Email))
	page, err := s.customers.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Customer]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}
