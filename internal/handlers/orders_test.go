package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/services"
)

type repoErrorStub struct {
	notFound bool
}

func (e repoErrorStub) Error() string       { return "repository error" }
func (e repoErrorStub) IsNotFound() bool    { return e.notFound }
func (e repoErrorStub) IsConflict() bool    { return false }
func (e repoErrorStub) IsUnavailable() bool { return !e.notFound }

type orderRepoStub struct {
	findByID   func(ctx context.Context, orderID string) (domain.Order, error)
	findByCart func(ctx context.Context, cartID string) ([]domain.Order, error)
}

func (s *orderRepoStub) Insert(context.Context, domain.Order) error { return nil }

func (s *orderRepoStub) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByID == nil {
		return domain.Order{}, repoErrorStub{notFound: true}
	}
	return s.findByID(ctx, orderID)
}

func (s *orderRepoStub) FindByCart(ctx context.Context, cartID string) ([]domain.Order, error) {
	if s.findByCart == nil {
		return nil, nil
	}
	return s.findByCart(ctx, cartID)
}

func (s *orderRepoStub) UpdateStatus(context.Context, string, domain.OrderStatus, time.Time) error {
	return nil
}

type paymentRepoStub struct {
	listByOrder func(ctx context.Context, orderID string) ([]domain.PaymentRecord, error)
}

func (s *paymentRepoStub) Insert(context.Context, domain.PaymentRecord) error { return nil }

func (s *paymentRepoStub) MarkPaidByOrder(context.Context, string, time.Time) error { return nil }

func (s *paymentRepoStub) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	if s.listByOrder == nil {
		return nil, nil
	}
	return s.listByOrder(ctx, orderID)
}

type invoiceRepoStub struct {
	listByOrder func(ctx context.Context, orderID string) ([]domain.Invoice, error)
}

func (s *invoiceRepoStub) Insert(context.Context, domain.Invoice) error { return nil }

func (s *invoiceRepoStub) ListByOrder(ctx context.Context, orderID string) ([]domain.Invoice, error) {
	if s.listByOrder == nil {
		return nil, nil
	}
	return s.listByOrder(ctx, orderID)
}

func newOrderTestRouter(t *testing.T, orders *orderRepoStub, payments *paymentRepoStub, invoices *invoiceRepoStub) chi.Router {
	t.Helper()

	query, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Orders:   orders,
		Payments: payments,
		Invoices: invoices,
	})
	if err != nil {
		t.Fatalf("failed to build order query service: %v", err)
	}

	router := chi.NewRouter()
	NewOrderHandlers(query).Routes(router)
	return router
}

func TestOrderHandlersGetOrder(t *testing.T) {
	created := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	orders := &orderRepoStub{
		findByID: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != "ord_1" {
				return domain.Order{}, repoErrorStub{notFound: true}
			}
			return domain.Order{
				ID:         "ord_1",
				CartID:     "crt_1",
				CustomerID: "cust_1",
				Status:     domain.OrderStatusPaid,
				Method:     domain.PaymentMethodCash,
				Subtotal:   22000,
				Total:      22000,
				Items: []domain.OrderLine{
					{Name: "Oatmeal Shampoo", Quantity: 2, UnitPrice: 5000, Total: 10000},
				},
				Appointments: []domain.OrderLine{
					{Name: "Full Groom", Quantity: 1, UnitPrice: 12000, Total: 12000},
				},
				CreatedAt: created,
			}, nil
		},
	}
	router := newOrderTestRouter(t, orders, &paymentRepoStub{}, &invoiceRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.ID != "ord_1" || body.Status != "paid" || body.Total != 22000 {
		t.Fatalf("unexpected order payload: %+v", body)
	}
	if len(body.Items) != 1 || len(body.Appointments) != 1 {
		t.Fatalf("expected one item and one appointment line, got %+v", body)
	}
	if body.CreatedAt != "2024-06-03T14:00:00Z" {
		t.Fatalf("unexpected createdAt %q", body.CreatedAt)
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	router := newOrderTestRouter(t, &orderRepoStub{}, &paymentRepoStub{}, &invoiceRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/ord_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersListByCart(t *testing.T) {
	orders := &orderRepoStub{
		findByCart: func(_ context.Context, cartID string) ([]domain.Order, error) {
			if cartID != "crt_1" {
				return nil, nil
			}
			return []domain.Order{
				{ID: "ord_1", CartID: "crt_1", Status: domain.OrderStatusPaid},
				{ID: "ord_2", CartID: "crt_1", Status: domain.OrderStatusPending},
			}, nil
		},
	}
	router := newOrderTestRouter(t, orders, &paymentRepoStub{}, &invoiceRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/?cartId=crt_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Orders []orderResponse `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Orders) != 2 {
		t.Fatalf("expected two orders, got %d", len(body.Orders))
	}
}

func TestOrderHandlersListByCartRequiresQuery(t *testing.T) {
	router := newOrderTestRouter(t, &orderRepoStub{}, &paymentRepoStub{}, &invoiceRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersListPayments(t *testing.T) {
	payments := &paymentRepoStub{
		listByOrder: func(_ context.Context, orderID string) ([]domain.PaymentRecord, error) {
			return []domain.PaymentRecord{
				{ID: "pay_1", OrderID: orderID, Amount: 22000, Method: domain.PaymentMethodCash, Status: domain.PaymentStatusPaid},
			}, nil
		},
	}
	orders := &orderRepoStub{
		findByID: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID}, nil
		},
	}
	router := newOrderTestRouter(t, orders, payments, &invoiceRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/ord_1/payments", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Payments []paymentResponse `json:"payments"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Payments) != 1 || body.Payments[0].Amount != 22000 {
		t.Fatalf("unexpected payments payload: %+v", body.Payments)
	}
}

func TestOrderHandlersListInvoices(t *testing.T) {
	invoices := &invoiceRepoStub{
		listByOrder: func(_ context.Context, orderID string) ([]domain.Invoice, error) {
			return []domain.Invoice{
				{ID: "inv_1", OrderID: orderID, Type: domain.InvoiceTypeDebit, Amount: 22000, InvoiceNumber: "INV-000042"},
			}, nil
		},
	}
	orders := &orderRepoStub{
		findByID: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID}, nil
		},
	}
	router := newOrderTestRouter(t, orders, &paymentRepoStub{}, invoices)

	req := httptest.NewRequest(http.MethodGet, "/ord_1/invoices", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Invoices []invoiceResponse `json:"invoices"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Invoices) != 1 || body.Invoices[0].InvoiceNumber != "INV-000042" {
		t.Fatalf("unexpected invoices payload: %+v", body.Invoices)
	}
}
