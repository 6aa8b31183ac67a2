package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
)

func openWorkingCart(t *testing.T, cart domain.Cart, carts *stubCartRepository) *WorkingCart {
	t.Helper()
	if carts.getFunc == nil {
		carts.getFunc = func(ctx context.Context, cartID string) (domain.Cart, error) {
			return cart, nil
		}
	}
	rec := newTestReconciler(t, carts, nil)
	working, err := rec.Open(context.Background(), cart.ID)
	if err != nil {
		t.Fatalf("open cart: %v", err)
	}
	return working
}

func newTestFinalizer(t *testing.T, carts *stubCartRepository, orders *stubOrderRepository, pays *stubPaymentRepository, invoicer Invoicer) Finalizer {
	t.Helper()
	fin, err := NewFinalizerService(FinalizerServiceDeps{
		Carts:       carts,
		Orders:      orders,
		Payments:    pays,
		Invoicer:    invoicer,
		Clock:       testClock(),
		IDGenerator: sequentialIDs("fin"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing finalizer: %v", err)
	}
	return fin
}

func TestFinalizeBankTransferTotals(t *testing.T) {
	cart := domain.Cart{
		ID:         "crt_9",
		CustomerID: "cust_9",
		Status:     domain.CartStatusActive,
		Items: []domain.CartItem{
			{ID: "item-1", CartID: "crt_9", Name: "Flea Collar", Quantity: 2, UnitPrice: 50},
		},
		Appointments: []domain.CartAppointment{
			{ID: "line-1", CartID: "crt_9", Ref: &domain.AppointmentRef{Kind: domain.AppointmentKindGrooming, ID: "apt_9"}, Label: "Bath & Brush", Price: 120},
		},
	}
	carts := &stubCartRepository{}
	working := openWorkingCart(t, cart, carts)

	var inserted domain.Order
	var recorded domain.PaymentRecord
	var completedAt time.Time
	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	carts.markCompletedFunc = func(ctx context.Context, cartID string, at time.Time) error {
		completedAt = at
		return nil
	}
	pays := &stubPaymentRepository{
		insertFunc: func(ctx context.Context, payment domain.PaymentRecord) error {
			recorded = payment
			return nil
		},
	}
	fin := newTestFinalizer(t, carts, orders, pays, nil)

	order, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodBankTransfer,
		Paid:    true,
		Amount:  220,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// 2 x 50 + 120
	if order.Subtotal != 220 {
		t.Fatalf("expected subtotal 220, got %d", order.Subtotal)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid order, got %q", order.Status)
	}
	if len(inserted.Items) != 1 || len(inserted.Appointments) != 1 {
		t.Fatalf("expected snapshots for every line, got %d/%d", len(inserted.Items), len(inserted.Appointments))
	}
	if inserted.Items[0].Total != 100 {
		t.Fatalf("expected item snapshot total 100, got %d", inserted.Items[0].Total)
	}
	if completedAt.IsZero() {
		t.Fatal("expected cart marked completed")
	}
	if recorded.Amount != 220 || recorded.Status != domain.PaymentStatusPaid {
		t.Fatalf("unexpected payment record: %+v", recorded)
	}
	if recorded.Method != domain.PaymentMethodBankTransfer {
		t.Fatalf("unexpected payment method: %q", recorded.Method)
	}
}

func TestFinalizeManualAmountBecomesTotal(t *testing.T) {
	cart := domain.Cart{
		ID:         "crt_9",
		CustomerID: "cust_9",
		Status:     domain.CartStatusActive,
		Items: []domain.CartItem{
			{ID: "item-1", CartID: "crt_9", Name: "Flea Collar", Quantity: 2, UnitPrice: 50},
		},
		Appointments: []domain.CartAppointment{
			{ID: "line-1", CartID: "crt_9", Ref: &domain.AppointmentRef{Kind: domain.AppointmentKindGrooming, ID: "apt_9"}, Label: "Bath & Brush", Price: 120},
		},
	}
	carts := &stubCartRepository{}
	working := openWorkingCart(t, cart, carts)

	var inserted domain.Order
	var recorded domain.PaymentRecord
	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	pays := &stubPaymentRepository{
		insertFunc: func(ctx context.Context, payment domain.PaymentRecord) error {
			recorded = payment
			return nil
		},
	}
	fin := newTestFinalizer(t, carts, orders, pays, nil)

	// The cashier collects 200 on a 220 cart; the order must carry what was
	// actually collected.
	order, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodCash,
		Paid:    true,
		Amount:  200,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if order.Subtotal != 220 {
		t.Fatalf("expected subtotal 220, got %d", order.Subtotal)
	}
	if order.Total != 200 {
		t.Fatalf("expected total to equal the collected amount 200, got %d", order.Total)
	}
	if inserted.Total != 200 {
		t.Fatalf("expected stored total 200, got %d", inserted.Total)
	}
	if recorded.Amount != 200 {
		t.Fatalf("expected payment record amount 200, got %d", recorded.Amount)
	}
}

func TestFinalizeSnapshotsAreByValue(t *testing.T) {
	cart := storedCart()
	carts := &stubCartRepository{}
	working := openWorkingCart(t, cart, carts)

	var inserted domain.Order
	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	fin := newTestFinalizer(t, carts, orders, &stubPaymentRepository{}, nil)

	if _, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodCash,
		Paid:    true,
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// Later cart edits must never reach the stored snapshot.
	if err := working.SetItemPrice("item-1", 1); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if inserted.Items[0].UnitPrice != 5000 {
		t.Fatalf("expected snapshot price 5000, got %d", inserted.Items[0].UnitPrice)
	}
}

func TestFinalizeRejectsSecondSettlement(t *testing.T) {
	cart := storedCart()
	carts := &stubCartRepository{}
	working := openWorkingCart(t, cart, carts)

	settled := false
	orders := &stubOrderRepository{
		findByCartFunc: func(ctx context.Context, cartID string) ([]domain.Order, error) {
			if settled {
				return []domain.Order{{ID: "ord_1", CartID: cartID, Status: domain.OrderStatusPaid}}, nil
			}
			return nil, nil
		},
		insertFunc: func(ctx context.Context, order domain.Order) error {
			settled = true
			return nil
		},
	}
	fin := newTestFinalizer(t, carts, orders, &stubPaymentRepository{}, nil)

	if _, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodCash,
		Paid:    true,
	}); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	if _, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodCash,
		Paid:    true,
	}); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestFinalizeTreatsInsertConflictAsSettled(t *testing.T) {
	cart := storedCart()
	carts := &stubCartRepository{}
	working := openWorkingCart(t, cart, carts)

	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			return &repositoryErrorStub{conflict: true}
		},
	}
	fin := newTestFinalizer(t, carts, orders, &stubPaymentRepository{}, nil)

	if _, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodCash,
		Paid:    true,
	}); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestFinalizeEmptyCartRejected(t *testing.T) {
	cart := domain.Cart{ID: "crt_empty", CustomerID: "cust_1", Status: domain.CartStatusActive}
	carts := &stubCartRepository{}
	working := openWorkingCart(t, cart, carts)

	fin := newTestFinalizer(t, carts, &stubOrderRepository{}, &stubPaymentRepository{}, nil)

	if _, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodCash,
		Paid:    true,
	}); !errors.Is(err, ErrFinalizerInvalidInput) {
		t.Fatalf("expected ErrFinalizerInvalidInput, got %v", err)
	}
}

func TestFinalizeCommitsDirtyScopesFirst(t *testing.T) {
	cart := storedCart()
	replaceCalled := false
	carts := &stubCartRepository{
		replaceItemsFunc: func(ctx context.Context, cartID string, items []domain.CartItem) error {
			replaceCalled = true
			return nil
		},
	}
	working := openWorkingCart(t, cart, carts)
	if _, err := working.AddTemporaryProduct("Treats", 700, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}

	fin := newTestFinalizer(t, carts, &stubOrderRepository{}, &stubPaymentRepository{}, nil)

	order, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working: working,
		Method:  domain.PaymentMethodCash,
		Paid:    true,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !replaceCalled {
		t.Fatal("expected uncommitted items to be committed before finalize")
	}
	if order.Subtotal != 22000+700 {
		t.Fatalf("expected subtotal to include committed edit, got %d", order.Subtotal)
	}
}

type stubInvoicer struct {
	issueFunc func(ctx context.Context, order domain.Order) (domain.Invoice, error)
}

func (s *stubInvoicer) Issue(ctx context.Context, order domain.Order) (domain.Invoice, error) {
	if s.issueFunc != nil {
		return s.issueFunc(ctx, order)
	}
	return domain.Invoice{}, nil
}

func TestFinalizeInvoiceFailureIsNonFatal(t *testing.T) {
	cart := storedCart()
	carts := &stubCartRepository{}
	working := openWorkingCart(t, cart, carts)

	invoicer := &stubInvoicer{
		issueFunc: func(ctx context.Context, order domain.Order) (domain.Invoice, error) {
			return domain.Invoice{}, errors.New("tax portal down")
		},
	}
	fin := newTestFinalizer(t, carts, &stubOrderRepository{}, &stubPaymentRepository{}, invoicer)

	if _, err := fin.Finalize(context.Background(), FinalizeCommand{
		Working:      working,
		Method:       domain.PaymentMethodCash,
		Paid:         true,
		IssueInvoice: true,
	}); err != nil {
		t.Fatalf("expected invoice failure to be swallowed, got %v", err)
	}
}
