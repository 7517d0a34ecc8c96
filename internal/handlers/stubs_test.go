package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/services"
)

var errStubNotConfigured = errors.New("stub not configured")

type stubOrderService struct {
	getFunc        func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error)
	listFunc       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFunc func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	markPaidFunc   func(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error)
	shipFunc       func(ctx context.Context, cmd services.ShipOrderCommand) (services.Order, error)
	deliverFunc    func(ctx context.Context, cmd services.DeliverOrderCommand) (services.Order, error)
	cancelFunc     func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	notesFunc      func(ctx context.Context, cmd services.UpdateAdminNotesCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.getFunc(ctx, orderID, opts)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Order]{}, errStubNotConfigured
	}
	return s.listFunc(ctx, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.transitionFunc(ctx, cmd)
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
	if s.markPaidFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.markPaidFunc(ctx, cmd)
}

func (s *stubOrderService) Ship(ctx context.Context, cmd services.ShipOrderCommand) (services.Order, error) {
	if s.shipFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.shipFunc(ctx, cmd)
}

func (s *stubOrderService) Deliver(ctx context.Context, cmd services.DeliverOrderCommand) (services.Order, error) {
	if s.deliverFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.deliverFunc(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.cancelFunc(ctx, cmd)
}

func (s *stubOrderService) UpdateAdminNotes(ctx context.Context, cmd services.UpdateAdminNotesCommand) (services.Order, error) {
	if s.notesFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.notesFunc(ctx, cmd)
}

type stubUploadService struct {
	requestFunc     func(ctx context.Context, cmd services.RequestUploadCommand) (services.UploadTicket, error)
	linkFunc        func(ctx context.Context, cmd services.LinkUploadsCommand) (services.LinkUploadsResult, error)
	startReviewFunc func(ctx context.Context, cmd services.ReviewUploadCommand) (services.Upload, error)
	approveFunc     func(ctx context.Context, cmd services.ReviewUploadCommand) (services.UploadReviewResult, error)
	rejectFunc      func(ctx context.Context, cmd services.ReviewUploadCommand) (services.UploadReviewResult, error)
	resubmitFunc    func(ctx context.Context, cmd services.ResubmitUploadCommand) (services.UploadResubmission, error)
	deleteFunc      func(ctx context.Context, cmd services.DeleteUploadCommand) error
	downloadFunc    func(ctx context.Context, cmd services.UploadDownloadCommand) (services.SignedURL, error)
	listOrderFunc   func(ctx context.Context, orderID string) ([]services.Upload, error)
	listMineFunc    func(ctx context.Context, userID string) ([]services.Upload, error)
	queueFunc       func(ctx context.Context, limit int) ([]services.Upload, error)
	purgeFunc       func(ctx context.Context, cmd services.PurgeStaleUploadsCommand) (int, error)
}

func (s *stubUploadService) RequestUpload(ctx context.Context, cmd services.RequestUploadCommand) (services.UploadTicket, error) {
	if s.requestFunc == nil {
		return services.UploadTicket{}, errStubNotConfigured
	}
	return s.requestFunc(ctx, cmd)
}

func (s *stubUploadService) Link(ctx context.Context, cmd services.LinkUploadsCommand) (services.LinkUploadsResult, error) {
	if s.linkFunc == nil {
		return services.LinkUploadsResult{}, errStubNotConfigured
	}
	return s.linkFunc(ctx, cmd)
}

func (s *stubUploadService) StartReview(ctx context.Context, cmd services.ReviewUploadCommand) (services.Upload, error) {
	if s.startReviewFunc == nil {
		return services.Upload{}, errStubNotConfigured
	}
	return s.startReviewFunc(ctx, cmd)
}

func (s *stubUploadService) Approve(ctx context.Context, cmd services.ReviewUploadCommand) (services.UploadReviewResult, error) {
	if s.approveFunc == nil {
		return services.UploadReviewResult{}, errStubNotConfigured
	}
	return s.approveFunc(ctx, cmd)
}

func (s *stubUploadService) Reject(ctx context.Context, cmd services.ReviewUploadCommand) (services.UploadReviewResult, error) {
	if s.rejectFunc == nil {
		return services.UploadReviewResult{}, errStubNotConfigured
	}
	return s.rejectFunc(ctx, cmd)
}

func (s *stubUploadService) Resubmit(ctx context.Context, cmd services.ResubmitUploadCommand) (services.UploadResubmission, error) {
	if s.resubmitFunc == nil {
		return services.UploadResubmission{}, errStubNotConfigured
	}
	return s.resubmitFunc(ctx, cmd)
}

func (s *stubUploadService) Delete(ctx context.Context, cmd services.DeleteUploadCommand) error {
	if s.deleteFunc == nil {
		return errStubNotConfigured
	}
	return s.deleteFunc(ctx, cmd)
}

func (s *stubUploadService) DownloadURL(ctx context.Context, cmd services.UploadDownloadCommand) (services.SignedURL, error) {
	if s.downloadFunc == nil {
		return services.SignedURL{}, errStubNotConfigured
	}
	return s.downloadFunc(ctx, cmd)
}

func (s *stubUploadService) ListOrderUploads(ctx context.Context, orderID string) ([]services.Upload, error) {
	if s.listOrderFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listOrderFunc(ctx, orderID)
}

func (s *stubUploadService) ListMyUploads(ctx context.Context, userID string) ([]services.Upload, error) {
	if s.listMineFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listMineFunc(ctx, userID)
}

func (s *stubUploadService) ListReviewQueue(ctx context.Context, limit int) ([]services.Upload, error) {
	if s.queueFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.queueFunc(ctx, limit)
}

func (s *stubUploadService) PurgeStalePending(ctx context.Context, cmd services.PurgeStaleUploadsCommand) (int, error) {
	if s.purgeFunc == nil {
		return 0, errStubNotConfigured
	}
	return s.purgeFunc(ctx, cmd)
}

type stubCartService struct {
	getFunc    func(ctx context.Context, userID string) (services.Cart, error)
	addFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeFunc func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	clearFunc  func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFunc == nil {
		return services.Cart{}, errStubNotConfigured
	}
	return s.getFunc(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFunc == nil {
		return services.Cart{}, errStubNotConfigured
	}
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFunc == nil {
		return services.Cart{}, errStubNotConfigured
	}
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFunc == nil {
		return services.Cart{}, errStubNotConfigured
	}
	return s.removeFunc(ctx, cmd)
}

func (s *stubCartService) Clear(ctx context.Context, userID string) error {
	if s.clearFunc == nil {
		return errStubNotConfigured
	}
	return s.clearFunc(ctx, userID)
}

type stubCatalogService struct {
	listFunc   func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
	getFunc    func(ctx context.Context, productID string, includeInactive bool) (services.Product, error)
	searchFunc func(ctx context.Context, query services.ProductSearchQuery) ([]services.Product, error)
	createFunc func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	updateFunc func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	deleteFunc func(ctx context.Context, productID string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Product]{}, errStubNotConfigured
	}
	return s.listFunc(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (services.Product, error) {
	if s.getFunc == nil {
		return services.Product{}, errStubNotConfigured
	}
	return s.getFunc(ctx, productID, includeInactive)
}

func (s *stubCatalogService) SearchProducts(ctx context.Context, query services.ProductSearchQuery) ([]services.Product, error) {
	if s.searchFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.searchFunc(ctx, query)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createFunc == nil {
		return services.Product{}, errStubNotConfigured
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.updateFunc == nil {
		return services.Product{}, errStubNotConfigured
	}
	return s.updateFunc(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteFunc == nil {
		return errStubNotConfigured
	}
	return s.deleteFunc(ctx, productID)
}

type stubCustomerService struct {
	ensureFunc func(ctx context.Context, cmd services.EnsureCustomerCommand) (services.Customer, error)
	getFunc    func(ctx context.Context, customerID string) (services.Customer, error)
	listFunc   func(ctx context.Context, filter services.CustomerListFilter) (domain.CursorPage[services.Customer], error)
}

func (s *stubCustomerService) EnsureCustomer(ctx context.Context, cmd services.EnsureCustomerCommand) (services.Customer, error) {
	if s.ensureFunc == nil {
		return services.Customer{}, errStubNotConfigured
	}
	return s.ensureFunc(ctx, cmd)
}

func (s *stubCustomerService) GetCustomer(ctx context.Context, customerID string) (services.Customer, error) {
	if s.getFunc == nil {
		return services.Customer{}, errStubNotConfigured
	}
	return s.getFunc(ctx, customerID)
}

func (s *stubCustomerService) ListCustomers(ctx context.Context, filter services.CustomerListFilter) (domain.CursorPage[services.Customer], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Customer]{}, errStubNotConfigured
	}
	return s.listFunc(ctx, filter)
}

type stubAdminService struct {
	loginFunc  func(ctx context.Context, cmd services.AdminLoginCommand) (services.AdminSession, error)
	listFunc   func(ctx context.Context) ([]services.Admin, error)
	getFunc    func(ctx context.Context, adminID string) (services.Admin, error)
	createFunc func(ctx context.Context, cmd services.CreateAdminCommand) (services.Admin, error)
	updateFunc func(ctx context.Context, cmd services.UpdateAdminCommand) (services.Admin, error)
	deleteFunc func(ctx context.Context, cmd services.DeleteAdminCommand) error
}

func (s *stubAdminService) Login(ctx context.Context, cmd services.AdminLoginCommand) (services.AdminSession, error) {
	if s.loginFunc == nil {
		return services.AdminSession{}, errStubNotConfigured
	}
	return s.loginFunc(ctx, cmd)
}

func (s *stubAdminService) ListAdmins(ctx context.Context) ([]services.Admin, error) {
	if s.listFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listFunc(ctx)
}

func (s *stubAdminService) GetAdmin(ctx context.Context, adminID string) (services.Admin, error) {
	if s.getFunc == nil {
		return services.Admin{}, errStubNotConfigured
	}
	return s.getFunc(ctx, adminID)
}

func (s *stubAdminService) CreateAdmin(ctx context.Context, cmd services.CreateAdminCommand) (services.Admin, error) {
	if s.createFunc == nil {
		return services.Admin{}, errStubNotConfigured
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubAdminService) UpdateAdmin(ctx context.Context, cmd services.UpdateAdminCommand) (services.Admin, error) {
	if s.updateFunc == nil {
		return services.Admin{}, errStubNotConfigured
	}
	return s.updateFunc(ctx, cmd)
}

func (s *stubAdminService) DeleteAdmin(ctx context.Context, cmd services.DeleteAdminCommand) error {
	if s.deleteFunc == nil {
		return errStubNotConfigured
	}
	return s.deleteFunc(ctx, cmd)
}

type stubCheckoutService struct {
	checkoutFunc func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFunc == nil {
		return services.CheckoutResult{}, errStubNotConfigured
	}
	return s.checkoutFunc(ctx, cmd)
}

type stubDashboardService struct {
	summary services.DashboardSummary
	err     error
}

func (s *stubDashboardService) Summary(context.Context) (services.DashboardSummary, error) {
	return s.summary, s.err
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type stubPaymentEventHandler struct {
	handleFunc func(ctx context.Context, event payments.Event) (services.PaymentEventResult, error)
}

func (s *stubPaymentEventHandler) Handle(ctx context.Context, event payments.Event) (services.PaymentEventResult, error) {
	if s.handleFunc == nil {
		return services.PaymentEventResult{}, errStubNotConfigured
	}
	return s.handleFunc(ctx, event)
}

type stubEventParser struct {
	parseFunc func(payload []byte, signatureHeader string) (payments.Event, error)
}

func (s *stubEventParser) Parse(payload []byte, signatureHeader string) (payments.Event, error) {
	if s.parseFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.parseFunc(payload, signatureHeader)
}

var (
	customerIdentity = &auth.Identity{UID: "user-1", Email: "mika@example.com", Name: "Mika", Roles: []string{auth.RoleUser}, Provider: auth.ProviderFirebase}
	staffIdentity    = &auth.Identity{UID: "adm_staff", Email: "staff@example.com", Roles: []string{auth.RoleStaff}, Provider: auth.ProviderAdmin}
	superIdentity    = &auth.Identity{UID: "adm_root", Email: "root@example.com", Roles: []string{auth.RoleStaff, auth.RoleAdmin}, Provider: auth.ProviderAdmin}
)

// serve mounts routes under prefix and executes one request as identity (nil for anonymous).
func serve(t *testing.T, prefix string, routes func(chi.Router), identity *auth.Identity, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(prefix, routes)

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody[map[string]any](t, rr)
	code, _ := body["error"].(string)
	return code
}
