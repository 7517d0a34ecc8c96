package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/config"
	"github.com/acrylicworks/api/internal/repositories"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(config.PersistenceConfig{Driver: config.DriverSQLite, DSN: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	store, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func sampleOrder(id string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: "AC-" + id,
		UserID:      "user-1",
		Status:      domain.OrderStatusPaid,
		Currency:    "JPY",
		Totals:      domain.OrderTotals{Subtotal: 1000, Tax: 100, ShippingFee: 0, Total: 1100},
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "prod-1", ProductName: "Keychain", UnitPrice: 1000, Quantity: 1, Subtotal: 1000, RequiresUpload: true},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepositoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	order := sampleOrder("ord_1", now)
	order.PaymentIntentID = "pi_123"
	require.NoError(t, store.Orders().Insert(ctx, order))
	require.Error(t, store.Orders().Insert(ctx, order))

	found, err := store.Orders().FindByID(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, found.Status)
	assert.Len(t, found.Items, 1)
	assert.True(t, found.Items[0].RequiresUpload)
	assert.True(t, found.CreatedAt.Equal(now))

	byIntent, err := store.Orders().FindByPaymentIntent(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "ord_1", byIntent.ID)

	found.Status = domain.OrderStatusConfirmed
	confirmedAt := now.Add(time.Hour)
	found.ConfirmedAt = &confirmedAt
	found.UpdatedAt = confirmedAt
	require.NoError(t, store.Orders().Update(ctx, found))

	reloaded, err := store.Orders().FindByID(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, reloaded.Status)
	require.NotNil(t, reloaded.ConfirmedAt)
	assert.True(t, reloaded.UpdatedAt.Equal(confirmedAt))

	_, err = store.Orders().FindByID(ctx, "missing")
	assert.True(t, isNotFound(err), "expected not found, got %v", err)
	assert.True(t, isNotFound(store.Orders().Update(ctx, sampleOrder("missing", now))))
}

func TestOrderRepositoryListPaginatesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		order := sampleOrder(fmt.Sprintf("ord_%d", i), base.Add(time.Duration(i)*time.Minute))
		if i%2 == 0 {
			order.Status = domain.OrderStatusShipped
		}
		require.NoError(t, store.Orders().Insert(ctx, order))
	}

	page, err := store.Orders().List(ctx, repositories.OrderListFilter{UserID: "user-1", Pagination: domain.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ord_4", page.Items[0].ID)
	assert.Equal(t, "ord_3", page.Items[1].ID)
	require.NotEmpty(t, page.NextPageToken)

	next, err := store.Orders().List(ctx, repositories.OrderListFilter{UserID: "user-1", Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.Items, 2)
	assert.Equal(t, "ord_2", next.Items[0].ID)

	shipped, err := store.Orders().List(ctx, repositories.OrderListFilter{Status: []domain.OrderStatus{domain.OrderStatusShipped}})
	require.NoError(t, err)
	assert.Len(t, shipped.Items, 3)

	counts, err := store.Orders().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.OrderStatusShipped])
	assert.Equal(t, 2, counts[domain.OrderStatusPaid])
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Orders().Insert(ctx, sampleOrder("ord_tx", now)))

	sentinel := errors.New("boom")
	err := store.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := store.Orders().FindByID(txCtx, "ord_tx")
		if err != nil {
			return err
		}
		order.Status = domain.OrderStatusCancelled
		if err := store.Orders().Update(txCtx, order); err != nil {
			return err
		}
		return store.RunInTx(txCtx, func(context.Context) error { return sentinel })
	})
	require.ErrorIs(t, err, sentinel)

	order, err := store.Orders().FindByID(ctx, "ord_tx")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
}

func TestUploadRepositoryLinkAndQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"upl_b", "upl_a", "upl_old"} {
		require.NoError(t, store.Uploads().Insert(ctx, domain.Upload{
			ID:         id,
			UserID:     "user-1",
			FileName:   id + ".png",
			StorageKey: "uploads/user-1/" + id,
			MimeType:   "image/png",
			Size:       100,
			Status:     domain.UploadStatusPending,
			CreatedAt:  now.Add(time.Duration(i) * time.Hour),
			UpdatedAt:  now,
		}))
	}

	for i, id := range []string{"upl_b", "upl_a"} {
		require.NoError(t, store.Uploads().LinkToOrderItem(ctx, repositories.UploadLink{
			UploadID:    id,
			OrderID:     "ord_1",
			OrderItemID: fmt.Sprintf("item-%d", 2-i),
			Status:      domain.UploadStatusSubmitted,
			UpdatedAt:   now,
		}))
	}
	assert.True(t, isNotFound(store.Uploads().LinkToOrderItem(ctx, repositories.UploadLink{UploadID: "nope", OrderID: "ord_1"})))

	linked, err := store.Uploads().ListByOrder(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, linked, 2)
	assert.Equal(t, "upl_a", linked[0].ID)
	assert.Equal(t, domain.UploadStatusSubmitted, linked[0].Status)
	require.NotNil(t, linked[0].OrderItemID)
	assert.Equal(t, "item-1", *linked[0].OrderItemID)

	stale, err := store.Uploads().ListStalePending(ctx, now.Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "upl_old", stale[0].ID)

	submitted, err := store.Uploads().ListByStatus(ctx, []domain.UploadStatus{domain.UploadStatusSubmitted}, 0)
	require.NoError(t, err)
	assert.Len(t, submitted, 2)

	require.NoError(t, store.Uploads().Delete(ctx, "upl_old"))
	assert.True(t, isNotFound(store.Uploads().Delete(ctx, "upl_old")))
}

func TestCounterRepositoryIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Counters().Next(ctx, "orders", 1)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := store.Counters().Next(ctx, "orders", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(13), got)

	_, err = store.Counters().Next(ctx, " ", 1)
	var counterErr *repositories.CounterError
	require.ErrorAs(t, err, &counterErr)
	assert.Equal(t, repositories.CounterErrorInvalidInput, counterErr.Code)
}

func TestCartAndCustomerRepositories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	empty, err := store.Carts().GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, empty.Items)

	_, err = store.Carts().SaveCart(ctx, domain.Cart{UserID: "user-1", Currency: "jpy", Items: []domain.CartItem{{ID: "ci-1", ProductID: "prod-1", Quantity: 2}}, UpdatedAt: now})
	require.NoError(t, err)
	_, err = store.Carts().SaveCart(ctx, domain.Cart{UserID: "user-1", Currency: "jpy", Items: []domain.CartItem{{ID: "ci-1", ProductID: "prod-1", Quantity: 3}}, UpdatedAt: now})
	require.NoError(t, err)
	cart, err := store.Carts().GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, "JPY", cart.Currency)
	require.NoError(t, store.Carts().ClearCart(ctx, "user-1"))

	first, err := store.Customers().Upsert(ctx, domain.Customer{ID: "user-1", Email: "A@Example.com", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", first.Email)

	later := now.Add(24 * time.Hour)
	second, err := store.Customers().Upsert(ctx, domain.Customer{ID: "user-1", Email: "a@example.com", DisplayName: "Aki", CreatedAt: later, UpdatedAt: later})
	require.NoError(t, err)
	assert.Equal(t, "Aki", second.DisplayName)
	assert.True(t, second.CreatedAt.Equal(now))

	count, err := store.Customers().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAdminRepositoryFindByEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Admins().Insert(ctx, domain.Admin{ID: "adm_1", Email: "Ops@Example.com", Name: "Ops", Role: domain.AdminRoleSuper, PasswordHash: "hash", Active: true, CreatedAt: now, UpdatedAt: now}))

	admin, err := store.Admins().FindByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "adm_1", admin.ID)
	assert.Equal(t, domain.AdminRoleSuper, admin.Role)

	_, err = store.Admins().FindByEmail(ctx, "nobody@example.com")
	assert.True(t, isNotFound(err))

	require.NoError(t, store.Admins().Delete(ctx, "adm_1"))
	list, err := store.Admins().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
