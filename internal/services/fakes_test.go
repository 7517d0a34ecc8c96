package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/payments"
	pstorage "github.com/acrylicworks/api/internal/platform/storage"
	"github.com/acrylicworks/api/internal/repositories"
)

var testNow = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fakeRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *fakeRepoError) Error() string { return e.msg }
func (e *fakeRepoError) IsNotFound() bool { return e.notFound }
func (e *fakeRepoError) IsConflict() bool { return e.conflict }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavailable }

func errNotFound(kind, id string) error {
	return &fakeRepoError{msg: fmt.Sprintf("%s %s not found", kind, id), notFound: true}
}

func errConflict(kind, id string) error {
	return &fakeRepoError{msg: fmt.Sprintf("%s %s already exists", kind, id), conflict: true}
}

var errUnavailable = &fakeRepoError{msg: "backend unavailable", unavailable: true}

// memStore is an in-memory Registry. RunInTx snapshots every collection and restores it when fn
// fails, so tests can assert that failed transactions leave no partial writes.
type memStore struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	uploads   map[string]domain.Upload
	products  map[string]domain.Product
	carts     map[string]domain.Cart
	customers map[string]domain.Customer
	admins    map[string]domain.Admin
	counters  map[string]int64

	// fail maps "<collection>.<method>" to an error returned by that call.
	fail map[string]error
	txs  int
}

func newMemStore() *memStore {
	return &memStore{
		orders:    map[string]domain.Order{},
		uploads:   map[string]domain.Upload{},
		products:  map[string]domain.Product{},
		carts:     map[string]domain.Cart{},
		customers: map[string]domain.Customer{},
		admins:    map[string]domain.Admin{},
		counters:  map[string]int64{},
		fail:      map[string]error{},
	}
}

var _ repositories.Registry = (*memStore)(nil)

func (s *memStore) Close(context.Context) error { return nil }
func (s *memStore) Orders() repositories.OrderRepository { return memOrders{s} }
func (s *memStore) Uploads() repositories.UploadRepository { return memUploads{s} }
func (s *memStore) Products() repositories.ProductRepository { return memProducts{s} }
func (s *memStore) Carts() repositories.CartRepository { return memCarts{s} }
func (s *memStore) Customers() repositories.CustomerRepository { return memCustomers{s} }
func (s *memStore) Admins() repositories.AdminRepository { return memAdmins{s} }
func (s *memStore) Counters() repositories.CounterRepository { return memCounters{s} }
func (s *memStore) Health() repositories.HealthRepository { return nil }
func (s *memStore) failWith(op string, err error) { s.fail[op] = err }
func (s *memStore) check(op string) error { return s.fail[op] }
func (s *memStore) order(id string) domain.Order { return s.orders[id] }
func (s *memStore) upload(id string) domain.Upload { return s.uploads[id] }
func (s *memStore) putOrder(order domain.Order) { s.orders[order.ID] = order }
func (s *memStore) putUpload(upload domain.Upload) { s.uploads[upload.ID] = upload }
func (s *memStore) putProduct(product domain.Product) { s.products[product.ID] = product }
func (s *memStore) putCart(cart domain.Cart) { s.carts[cart.UserID] = cart }
func (s *memStore) putCustomer(customer domain.Customer) { s.customers[customer.ID] = customer }
func (s *memStore) putAdmin(admin domain.Admin) { s.admins[admin.ID] = admin }

func (s *memStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	s.txs++
	snapshot := struct {
		orders    map[string]domain.Order
		uploads   map[string]domain.Upload
		products  map[string]domain.Product
		carts     map[string]domain.Cart
		customers map[string]domain.Customer
		admins    map[string]domain.Admin
		counters  map[string]int64
	}{maps.Clone(s.orders), maps.Clone(s.uploads), maps.Clone(s.products), maps.Clone(s.carts), maps.Clone(s.customers), maps.Clone(s.admins), maps.Clone(s.counters)}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.orders, s.uploads, s.products = snapshot.orders, snapshot.uploads, snapshot.products
		s.carts, s.customers, s.admins, s.counters = snapshot.carts, snapshot.customers, snapshot.admins, snapshot.counters
		s.mu.Unlock()
		return err
	}
	return nil
}

func paginate[T any](items []T, p domain.Pagination) domain.CursorPage[T] {
	offset, _ := strconv.Atoi(p.PageToken)
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if p.PageSize <= 0 || p.PageSize >= len(items) {
		return domain.CursorPage[T]{Items: items}
	}
	return domain.CursorPage[T]{Items: items[:p.PageSize], NextPageToken: strconv.Itoa(offset + p.PageSize)}
}

type memOrders struct{ s *memStore }

func (r memOrders) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("orders.Insert"); err != nil {
		return err
	}
	if _, ok := r.s.orders[order.ID]; ok {
		return errConflict("order", order.ID)
	}
	r.s.orders[order.ID] = order
	return nil
}

func (r memOrders) Update(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("orders.Update"); err != nil {
		return err
	}
	if _, ok := r.s.orders[order.ID]; !ok {
		return errNotFound("order", order.ID)
	}
	r.s.orders[order.ID] = order
	return nil
}

func (r memOrders) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("orders.FindByID"); err != nil {
		return domain.Order{}, err
	}
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFound("order", orderID)
	}
	return order, nil
}

func (r memOrders) FindByPaymentIntent(_ context.Context, intentID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, order := range r.s.orders {
		if order.PaymentIntentID == intentID {
			return order, nil
		}
	}
	return domain.Order{}, errNotFound("payment intent", intentID)
}

func (r memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("orders.List"); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	var out []domain.Order
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, filter.Pagination), nil
}

func (r memOrders) CountByStatus(context.Context) (map[domain.OrderStatus]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[domain.OrderStatus]int{}
	for _, order := range r.s.orders {
		counts[order.Status]++
	}
	return counts, nil
}

type memUploads struct{ s *memStore }

func (r memUploads) Insert(_ context.Context, upload domain.Upload) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("uploads.Insert"); err != nil {
		return err
	}
	if _, ok := r.s.uploads[upload.ID]; ok {
		return errConflict("upload", upload.ID)
	}
	r.s.uploads[upload.ID] = upload
	return nil
}

func (r memUploads) Update(_ context.Context, upload domain.Upload) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("uploads.Update"); err != nil {
		return err
	}
	if _, ok := r.s.uploads[upload.ID]; !ok {
		return errNotFound("upload", upload.ID)
	}
	r.s.uploads[upload.ID] = upload
	return nil
}

func (r memUploads) FindByID(_ context.Context, uploadID string) (domain.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	upload, ok := r.s.uploads[uploadID]
	if !ok {
		return domain.Upload{}, errNotFound("upload", uploadID)
	}
	return upload, nil
}

func (r memUploads) filter(keep func(domain.Upload) bool, limit int) []domain.Upload {
	var out []domain.Upload
	for _, upload := range r.s.uploads {
		if keep(upload) {
			out = append(out, upload)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r memUploads) ListByOrder(_ context.Context, orderID string) ([]domain.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("uploads.ListByOrder"); err != nil {
		return nil, err
	}
	return r.filter(func(u domain.Upload) bool { return u.LinkedTo(orderID) }, 0), nil
}

func (r memUploads) ListByUser(_ context.Context, userID string) ([]domain.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(u domain.Upload) bool { return u.UserID == userID }, 0), nil
}

func (r memUploads) ListByStatus(_ context.Context, statuses []domain.UploadStatus, limit int) ([]domain.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(u domain.Upload) bool { return slices.Contains(statuses, u.Status) }, limit), nil
}

func (r memUploads) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]domain.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(u domain.Upload) bool {
		return u.Status == domain.UploadStatusPending && u.CreatedAt.Before(createdBefore)
	}, limit), nil
}

func (r memUploads) LinkToOrderItem(_ context.Context, link repositories.UploadLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("uploads.LinkToOrderItem"); err != nil {
		return err
	}
	upload, ok := r.s.uploads[link.UploadID]
	if !ok {
		return errNotFound("upload", link.UploadID)
	}
	upload.OrderID = valuePtr(link.OrderID)
	upload.OrderItemID = optionalString(link.OrderItemID)
	upload.QuantityIndex = link.QuantityIndex
	upload.Status = link.Status
	upload.UpdatedAt = link.UpdatedAt
	r.s.uploads[upload.ID] = upload
	return nil
}

func (r memUploads) Delete(_ context.Context, uploadID string) error {
	if err := r.s.check("uploads.Delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.uploads[uploadID]; !ok {
		return errNotFound("upload", uploadID)
	}
	delete(r.s.uploads, uploadID)
	return nil
}

type memProducts struct{ s *memStore }

func (r memProducts) Insert(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[product.ID]; ok {
		return errConflict("product", product.ID)
	}
	r.s.products[product.ID] = product
	return nil
}

func (r memProducts) Update(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[product.ID]; !ok {
		return errNotFound("product", product.ID)
	}
	r.s.products[product.ID] = product
	return nil
}

func (r memProducts) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("products.FindByID"); err != nil {
		return domain.Product{}, err
	}
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, errNotFound("product", productID)
	}
	return product, nil
}

func (r memProducts) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Product
	for _, product := range r.s.products {
		if filter.ActiveOnly && !product.Active {
			continue
		}
		if filter.Category != "" && product.Category != filter.Category {
			continue
		}
		out = append(out, product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter.Pagination), nil
}

func (r memProducts) Delete(_ context.Context, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[productID]; !ok {
		return errNotFound("product", productID)
	}
	delete(r.s.products, productID)
	return nil
}

type memCarts struct{ s *memStore }

func (r memCarts) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	cart.Items = slices.Clone(cart.Items)
	return cart, nil
}

func (r memCarts) SaveCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart.Items = slices.Clone(cart.Items)
	r.s.carts[cart.UserID] = cart
	return cart, nil
}

func (r memCarts) ClearCart(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("carts.ClearCart"); err != nil {
		return err
	}
	delete(r.s.carts, userID)
	return nil
}

type memCustomers struct{ s *memStore }

func (r memCustomers) Upsert(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = customer.UpdatedAt
	}
	r.s.customers[customer.ID] = customer
	return customer, nil
}

func (r memCustomers) FindByID(_ context.Context, customerID string) (domain.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("customers.FindByID"); err != nil {
		return domain.Customer{}, err
	}
	customer, ok := r.s.customers[customerID]
	if !ok {
		return domain.Customer{}, errNotFound("customer", customerID)
	}
	return customer, nil
}

func (r memCustomers) List(_ context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Customer
	for _, customer := range r.s.customers {
		if filter.Email != "" && customer.Email != filter.Email {
			continue
		}
		out = append(out, customer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter.Pagination), nil
}

func (r memCustomers) Count(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.customers), nil
}

type memAdmins struct{ s *memStore }

func (r memAdmins) Insert(_ context.Context, admin domain.Admin) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.admins {
		if existing.Email == admin.Email {
			return errConflict("admin", admin.Email)
		}
	}
	r.s.admins[admin.ID] = admin
	return nil
}

func (r memAdmins) Update(_ context.Context, admin domain.Admin) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.admins[admin.ID]; !ok {
		return errNotFound("admin", admin.ID)
	}
	r.s.admins[admin.ID] = admin
	return nil
}

func (r memAdmins) FindByID(_ context.Context, adminID string) (domain.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	admin, ok := r.s.admins[adminID]
	if !ok {
		return domain.Admin{}, errNotFound("admin", adminID)
	}
	return admin, nil
}

func (r memAdmins) FindByEmail(_ context.Context, email string) (domain.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, admin := range r.s.admins {
		if strings.EqualFold(admin.Email, email) {
			return admin, nil
		}
	}
	return domain.Admin{}, errNotFound("admin", email)
}

func (r memAdmins) List(context.Context) ([]domain.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := slices.Collect(maps.Values(r.s.admins))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAdmins) Delete(_ context.Context, adminID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.admins[adminID]; !ok {
		return errNotFound("admin", adminID)
	}
	delete(r.s.admins, adminID)
	return nil
}

type memCounters struct{ s *memStore }

func (r memCounters) Next(_ context.Context, counterID string, step int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("counters.Next"); err != nil {
		return 0, err
	}
	r.s.counters[counterID] += step
	return r.s.counters[counterID], nil
}

// Collaborator stubs ---------------------------------------------------------

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

// transitions renders status change events as "from->to" for compact assertions.
func (c *captureOrderEvents) transitions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, event := range c.events {
		if event.Type == orderEventStatusChanged {
			out = append(out, event.PreviousStatus+"->"+event.CurrentStatus)
		}
	}
	return out
}

type captureLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *captureLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *captureLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

type stubPaymentProvider struct {
	requests []payments.PaymentIntentRequest
	err      error
}

func (p *stubPaymentProvider) CreatePaymentIntent(_ context.Context, req payments.PaymentIntentRequest) (payments.PaymentIntent, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return payments.PaymentIntent{}, p.err
	}
	n := len(p.requests)
	return payments.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", n),
		Provider:     "stripe",
		ClientSecret: fmt.Sprintf("pi_%d_secret", n),
		Status:       payments.StatusPending,
		Amount:       req.Amount,
		Currency:     req.Currency,
		OrderID:      req.OrderID,
	}, nil
}

func (p *stubPaymentProvider) RetrievePaymentIntent(_ context.Context, intentID string) (payments.PaymentIntent, error) {
	return payments.PaymentIntent{ID: intentID, Status: payments.StatusPending}, nil
}

type stubNotifier struct {
	sent []OrderConfirmation
	err  error
}

func (n *stubNotifier) SendOrderConfirmation(_ context.Context, msg OrderConfirmation) error {
	n.sent = append(n.sent, msg)
	return n.err
}

type stubSigner struct {
	calls []pstorage.SignedURLOptions
	err   error
}

func (s *stubSigner) SignedURL(_ context.Context, bucket, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error) {
	s.calls = append(s.calls, opts)
	if s.err != nil {
		return pstorage.SignedURLResult{}, s.err
	}
	if opts.Download != nil {
		if err := pstorage.CanDownload(opts.Download.Identity, opts.Download.OwnerID); err != nil {
			return pstorage.SignedURLResult{}, err
		}
		return pstorage.SignedURLResult{URL: "https://storage.test/" + bucket + "/" + object + "?sig=get", Method: "GET", ExpiresAt: testNow.Add(15 * time.Minute)}, nil
	}
	return pstorage.SignedURLResult{
		URL:       "https://storage.test/" + bucket + "/" + object + "?sig=put",
		Method:    "PUT",
		ExpiresAt: testNow.Add(opts.Upload.ExpiresIn),
		Headers:   map[string]string{"Content-Type": opts.Upload.ContentType},
	}, nil
}

type stubObjects struct {
	deleted []string
	err     error
}

func (o *stubObjects) DeleteObject(_ context.Context, _ string, object string) error {
	if o.err != nil {
		return o.err
	}
	o.deleted = append(o.deleted, object)
	return nil
}

type stubSearcher struct {
	ids     []string
	err     error
	indexed []string
	removed []string
}

func (s *stubSearcher) SearchProductIDs(context.Context, string, int) ([]string, error) {
	return s.ids, s.err
}

func (s *stubSearcher) IndexProduct(_ context.Context, product Product) error {
	s.indexed = append(s.indexed, product.ID)
	return nil
}

func (s *stubSearcher) RemoveProduct(_ context.Context, productID string) error {
	s.removed = append(s.removed, productID)
	return nil
}

type stubTokenIssuer struct {
	issued []string
}

func (s *stubTokenIssuer) IssueAdminToken(admin Admin) (string, time.Time, error) {
	s.issued = append(s.issued, admin.ID)
	return "token-" + admin.ID, testNow.Add(time.Hour), nil
}

func sequentialIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

// Fixtures -------------------------------------------------------------------

func newOrderFixture(id string, status OrderStatus, items ...OrderItem) domain.Order {
	if len(items) == 0 {
		items = []OrderItem{{ID: "itm_01", ProductID: "prd_plate", ProductName: "Acrylic plate", UnitPrice: 1200, Quantity: 1, Subtotal: 1200}}
	}
	var subtotal int64
	for _, item := range items {
		subtotal += item.Subtotal
	}
	return domain.Order{
		ID:          id,
		OrderNumber: "AC-2025-000001",
		UserID:      "user-1",
		Status:      status,
		Currency:    "JPY",
		Totals:      OrderTotals{Subtotal: subtotal, Total: subtotal},
		Items:       items,
		CreatedAt:   testNow.Add(-time.Hour),
		UpdatedAt:   testNow.Add(-time.Hour),
	}
}

func uploadItem(id string) OrderItem {
	return OrderItem{ID: id, ProductID: "prd_stand", ProductName: "Custom stand", UnitPrice: 2500, Quantity: 1, Subtotal: 2500, RequiresUpload: true}
}

func newUploadFixture(id, orderID, itemID string, status UploadStatus) domain.Upload {
	upload := domain.Upload{
		ID:         id,
		UserID:     "user-1",
		FileName:   "art.png",
		StorageKey: "uploads/user-1/" + id + "/art.png",
		MimeType:   "image/png",
		Size:       2048,
		UploadType: "artwork",
		Status:     status,
		CreatedAt:  testNow.Add(-2 * time.Hour),
		UpdatedAt:  testNow.Add(-2 * time.Hour),
	}
	if orderID != "" {
		upload.OrderID = valuePtr(orderID)
	}
	if itemID != "" {
		upload.OrderItemID = valuePtr(itemID)
	}
	return upload
}

func requireErrorIs(t interface {
	Helper()
	Fatalf(string, ...any)
}, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}
