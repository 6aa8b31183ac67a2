package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
)

func strPtr(v string) *string {
	return &v
}

func testClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC) }
}

func newTestReconciler(t *testing.T, carts *stubCartRepository, appts *stubAppointmentRepository) *Reconciler {
	t.Helper()
	if appts == nil {
		appts = &stubAppointmentRepository{}
	}
	rec, err := NewReconciler(ReconcilerDeps{
		Carts:        carts,
		Appointments: appts,
		Clock:        testClock(),
		IDGenerator:  sequentialIDs("id"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing reconciler: %v", err)
	}
	return rec
}

func storedCart() domain.Cart {
	return domain.Cart{
		ID:         "crt_1",
		CustomerID: "cust_1",
		Status:     domain.CartStatusActive,
		Items: []domain.CartItem{
			{ID: "item-1", CartID: "crt_1", ProductRef: strPtr("prd_1"), Name: "Oatmeal Shampoo", Quantity: 2, UnitPrice: 5000},
		},
		Appointments: []domain.CartAppointment{
			{ID: "line-1", CartID: "crt_1", Ref: &domain.AppointmentRef{Kind: domain.AppointmentKindGrooming, ID: "apt_1"}, Label: "Full Groom", Price: 12000},
		},
	}
}

func TestReconcilerOpenIsCleanUntilEdited(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if working.IsDirty(ScopeProducts) || working.IsDirty(ScopeAppointments) {
		t.Fatal("freshly opened cart must be clean")
	}

	if _, err := working.AddTemporaryProduct("Chew Toy", 1500, 1); err != nil {
		t.Fatalf("add temporary product: %v", err)
	}
	if !working.IsDirty(ScopeProducts) {
		t.Fatal("expected products scope dirty after edit")
	}
	if working.IsDirty(ScopeAppointments) {
		t.Fatal("appointments scope must stay clean")
	}
}

func TestReconcilerCommitClearsDirtyFlag(t *testing.T) {
	var replaced []domain.CartItem
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
		replaceItemsFunc: func(ctx context.Context, cartID string, items []domain.CartItem) error {
			replaced = items
			return nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := working.AddTemporaryProduct("Chew Toy", 1500, 1); err != nil {
		t.Fatalf("add temporary product: %v", err)
	}

	if err := working.Commit(context.Background(), ScopeProducts); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if len(replaced) != 2 {
		t.Fatalf("expected full replace of 2 rows, got %d", len(replaced))
	}
	if working.IsDirty(ScopeProducts) {
		t.Fatal("expected products scope clean after commit")
	}
}

func TestReconcilerCommitMintsDurableLineIDs(t *testing.T) {
	var replacedItems []domain.CartItem
	var replacedAppts []domain.CartAppointment
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
		replaceItemsFunc: func(ctx context.Context, cartID string, items []domain.CartItem) error {
			replacedItems = items
			return nil
		},
		replaceAppointmentsFunc: func(ctx context.Context, cartID string, appts []domain.CartAppointment) error {
			replacedAppts = appts
			return nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line, err := working.AddTemporaryProduct("Chew Toy", 1500, 1)
	if err != nil {
		t.Fatalf("add temporary product: %v", err)
	}
	if !strings.HasPrefix(line.ID, "tmp_") {
		t.Fatalf("expected local id before commit, got %q", line.ID)
	}
	if _, err := working.AttachAppointment(domain.Appointment{
		Ref:         domain.AppointmentRef{Kind: domain.AppointmentKindDaycare, ID: "apt_2"},
		ServiceName: "Half Day",
		Price:       8000,
	}); err != nil {
		t.Fatalf("attach appointment: %v", err)
	}

	if err := working.CommitAll(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for _, item := range replacedItems {
		if strings.HasPrefix(item.ID, "tmp_") {
			t.Fatalf("local id %q must not reach the store", item.ID)
		}
	}
	for _, appt := range replacedAppts {
		if strings.HasPrefix(appt.ID, "tmp_") {
			t.Fatalf("local id %q must not reach the store", appt.ID)
		}
	}

	var minted bool
	for _, item := range replacedItems {
		if item.Name == "Chew Toy" {
			minted = strings.HasPrefix(item.ID, "itm_")
		}
	}
	if !minted {
		t.Fatal("expected the new product line stored under an itm_ id")
	}
	minted = false
	for _, appt := range replacedAppts {
		if appt.Label == "Half Day" {
			minted = strings.HasPrefix(appt.ID, "apt_")
		}
	}
	if !minted {
		t.Fatal("expected the new appointment line stored under an apt_ id")
	}
}

func TestReconcilerCommitCleanScopeSkipsStore(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
		replaceItemsFunc: func(ctx context.Context, cartID string, items []domain.CartItem) error {
			t.Fatal("clean commit must not touch the store")
			return nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := working.Commit(context.Background(), ScopeProducts); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestReconcilerDiscardRestoresOriginal(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := working.AddTemporaryService("Nail Trim", 3000); err != nil {
		t.Fatalf("add temporary service: %v", err)
	}
	if err := working.SetItemQuantity("item-1", 5); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	working.Discard()

	if working.IsDirty(ScopeProducts) {
		t.Fatal("expected clean products scope after discard")
	}
	cart := working.Cart()
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("expected original single line qty 2, got %+v", cart.Items)
	}
}

func TestReconcilerZeroQuantityRemovesRow(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := working.SetItemQuantity("item-1", 0); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	if got := len(working.Cart().Items); got != 0 {
		t.Fatalf("expected zero quantity to remove the row, got %d rows", got)
	}
}

func TestReconcilerAdHocServiceRoundTrip(t *testing.T) {
	stored := storedCart()
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return stored, nil
		},
		replaceItemsFunc: func(ctx context.Context, cartID string, items []domain.CartItem) error {
			stored.Items = items
			return nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line, err := working.AddTemporaryService("De-shedding", 4500)
	if err != nil {
		t.Fatalf("add temporary service: %v", err)
	}
	if err := working.Commit(context.Background(), ScopeProducts); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reloaded, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	var persisted *domain.CartItem
	items := reloaded.Cart().Items
	for i := range items {
		if items[i].ID == line.ID {
			persisted = &items[i]
			break
		}
	}
	if persisted == nil {
		t.Fatal("expected the ad-hoc service row to survive reload")
	}
	if persisted.Name != line.Name {
		t.Fatalf("expected stored name %q unchanged, got %q", line.Name, persisted.Name)
	}
	if persisted.UnitPrice != 4500 || persisted.Quantity != 1 {
		t.Fatalf("unexpected persisted row: %+v", persisted)
	}

	services := reloaded.AdHocServices()
	if len(services) != 1 {
		t.Fatalf("expected one decoded service line, got %d", len(services))
	}
	if services[0].Label != "De-shedding" || services[0].Price != 4500 {
		t.Fatalf("unexpected decoded service: %+v", services[0])
	}
}

func TestReconcilerSinglePriceEditWritesScheduleBook(t *testing.T) {
	var updatedRef *domain.AppointmentRef
	var updatedPrice int64
	appts := &stubAppointmentRepository{
		updatePriceFunc: func(ctx context.Context, ref domain.AppointmentRef, price int64, updatedAt time.Time) error {
			updatedRef = &ref
			updatedPrice = price
			return nil
		},
	}
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
	}
	rec := newTestReconciler(t, carts, appts)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := working.SetAppointmentPrice(context.Background(), "line-1", 10000); err != nil {
		t.Fatalf("set appointment price: %v", err)
	}

	if updatedRef == nil {
		t.Fatal("expected schedule book write for the only booked appointment")
	}
	if updatedRef.ID != "apt_1" || updatedPrice != 10000 {
		t.Fatalf("unexpected schedule book write: ref=%+v price=%d", updatedRef, updatedPrice)
	}
	if got := working.Cart().Appointments[0].Price; got != 10000 {
		t.Fatalf("expected cart line price 10000, got %d", got)
	}
}

func TestReconcilerMultiAppointmentPriceEditSkipsScheduleBook(t *testing.T) {
	appts := &stubAppointmentRepository{
		updatePriceFunc: func(ctx context.Context, ref domain.AppointmentRef, price int64, updatedAt time.Time) error {
			t.Fatal("schedule book must not change when several appointments are attached")
			return nil
		},
	}
	cart := storedCart()
	cart.Appointments = append(cart.Appointments, domain.CartAppointment{
		ID:     "line-2",
		CartID: "crt_1",
		Ref:    &domain.AppointmentRef{Kind: domain.AppointmentKindDaycare, ID: "apt_2"},
		Label:  "Half Day",
		Price:  8000,
	})
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return cart, nil
		},
	}
	rec := newTestReconciler(t, carts, appts)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := working.SetAppointmentPrice(context.Background(), "line-1", 11000); err != nil {
		t.Fatalf("set appointment price: %v", err)
	}
	if got := working.Cart().Appointments[0].Price; got != 11000 {
		t.Fatalf("expected cart line price 11000, got %d", got)
	}
}

func TestReconcilerSubtotalSumsItemsAndAppointments(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return storedCart(), nil
		},
	}
	rec := newTestReconciler(t, carts, nil)

	working, err := rec.Open(context.Background(), "crt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 2 x 5000 + 12000
	if got := working.Subtotal(); got != 22000 {
		t.Fatalf("expected subtotal 22000, got %d", got)
	}

	if _, err := working.AddTemporaryService("Nail Trim", 3000); err != nil {
		t.Fatalf("add temporary service: %v", err)
	}
	if got := working.Subtotal(); got != 25000 {
		t.Fatalf("expected subtotal 25000 after ad-hoc service, got %d", got)
	}
}

func TestReconcilerOpenTranslatesNotFound(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
	}
	rec := newTestReconciler(t, carts, nil)

	if _, err := rec.Open(context.Background(), "crt_missing"); !errors.Is(err, ErrReconcilerNotFound) {
		t.Fatalf("expected ErrReconcilerNotFound, got %v", err)
	}
}
