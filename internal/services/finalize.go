package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

var (
	errFinalizerCartsRequired    = errors.New("finalizer: cart repository is required")
	errFinalizerOrdersRequired   = errors.New("finalizer: order repository is required")
	errFinalizerPaymentsRequired = errors.New("finalizer: payment repository is required")
	errFinalizerClockRequired    = errors.New("finalizer: clock is required")
)

// ErrFinalizerInvalidInput indicates the caller supplied invalid input.
var ErrFinalizerInvalidInput = errors.New("finalizer: invalid input")

// ErrAlreadySettled indicates the cart already has a settled order. Finalize
// re-checks this guard on every call so a double submit can never cut a
// second order.
var ErrAlreadySettled = errors.New("finalizer: cart already settled")

// ErrFinalizerUnavailable indicates the backing store cannot be reached.
var ErrFinalizerUnavailable = errors.New("finalizer: unavailable")

// FinalizeCommand carries everything needed to cut an order from a cart.
type FinalizeCommand struct {
	Working *WorkingCart
	Method  domain.PaymentMethod
	// Paid marks the settlement as collected; false leaves the order pending
	// for out-of-band completion (payment link).
	Paid bool
	// Amount overrides the order total and the recorded payment amount.
	// Zero means the cart subtotal; bank transfer, cash and wallet
	// mark-received always pass the counted amount.
	Amount       int64
	Metadata     map[string]string
	IssueInvoice bool
}

// FinalizerServiceDeps wires persistence for order finalization.
type FinalizerServiceDeps struct {
	Carts       repositories.CartRepository
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Invoicer    Invoicer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type finalizerService struct {
	carts    repositories.CartRepository
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	invoicer Invoicer
	now      func() time.Time
	newID    func() string
	log      func(context.Context, string, map[string]any)
}

// NewFinalizerService constructs a Finalizer enforcing dependency validation.
func NewFinalizerService(deps FinalizerServiceDeps) (Finalizer, error) {
	if deps.Carts == nil {
		return nil, errFinalizerCartsRequired
	}
	if deps.Orders == nil {
		return nil, errFinalizerOrdersRequired
	}
	if deps.Payments == nil {
		return nil, errFinalizerPaymentsRequired
	}
	if deps.Clock == nil {
		return nil, errFinalizerClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &finalizerService{
		carts:    deps.Carts,
		orders:   deps.Orders,
		payments: deps.Payments,
		invoicer: deps.Invoicer,
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		log:      logger,
	}, nil
}

// Finalize cuts an immutable order from the working cart: commit outstanding
// edits, snapshot every line, complete the cart, and record the payment.
func (s *finalizerService) Finalize(ctx context.Context, cmd FinalizeCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrFinalizerUnavailable
	}
	if cmd.Working == nil {
		return domain.Order{}, ErrFinalizerInvalidInput
	}
	if cmd.Method == "" {
		return domain.Order{}, ErrFinalizerInvalidInput
	}

	cart := cmd.Working.Cart()
	if !cart.Billable() {
		return domain.Order{}, ErrFinalizerInvalidInput
	}

	if err := cmd.Working.CommitAll(ctx); err != nil {
		return domain.Order{}, err
	}

	existing, err := s.orders.FindByCart(ctx, cart.ID)
	if err != nil && !isRepoNotFound(err) {
		return domain.Order{}, s.translateRepoError(err)
	}
	for _, order := range existing {
		if domain.IsPaidLike(string(order.Status)) {
			return domain.Order{}, ErrAlreadySettled
		}
	}

	now := s.now()
	subtotal := cmd.Working.Subtotal()
	amount := cmd.Amount
	if amount <= 0 {
		amount = subtotal
	}

	order := domain.Order{
		ID:         "ord_" + s.newID(),
		CartID:     cart.ID,
		CustomerID: cart.CustomerID,
		Status:     domain.OrderStatusPending,
		Method:     cmd.Method,
		Subtotal:   subtotal,
		Total:      amount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if cmd.Paid {
		order.Status = domain.OrderStatusPaid
	}
	for _, item := range cart.Items {
		line := domain.OrderLine{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total(),
		}
		if item.ProductRef != nil {
			ref := *item.ProductRef
			line.ProductRef = &ref
		}
		order.Items = append(order.Items, line)
	}
	for _, appt := range cart.Appointments {
		line := domain.OrderLine{
			Name:      appt.Label,
			Quantity:  1,
			UnitPrice: appt.Price,
			Total:     appt.Price,
		}
		if appt.Ref != nil {
			ref := *appt.Ref
			line.AppointmentRef = &ref
		}
		order.Appointments = append(order.Appointments, line)
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if isRepoConflict(err) {
			return domain.Order{}, ErrAlreadySettled
		}
		return domain.Order{}, s.translateRepoError(err)
	}

	if err := s.carts.MarkCompleted(ctx, cart.ID, now); err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	payment := domain.PaymentRecord{
		ID:         "pay_" + s.newID(),
		OrderID:    order.ID,
		CartID:     cart.ID,
		CustomerID: cart.CustomerID,
		Amount:     amount,
		Method:     cmd.Method,
		Status:     domain.PaymentStatusUnpaid,
		Metadata:   cmd.Metadata,
		CreatedAt:  now,
	}
	if cmd.Paid {
		payment.Status = domain.PaymentStatusPaid
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	s.log(ctx, "finalizer.order_created", map[string]any{
		"orderId": order.ID,
		"cartId":  cart.ID,
		"method":  string(cmd.Method),
		"status":  string(order.Status),
		"amount":  amount,
	})

	if cmd.IssueInvoice && s.invoicer != nil {
		if _, err := s.invoicer.Issue(ctx, order); err != nil && !errors.Is(err, ErrInvoicingDisabled) {
			// Settlement already happened; a failed invoice is reported, not fatal.
			s.log(ctx, "finalizer.invoice_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	return order, nil
}

func (s *finalizerService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrFinalizerInvalidInput
		case repoErr.IsConflict():
			return ErrAlreadySettled
		}
	}
	return ErrFinalizerUnavailable
}
