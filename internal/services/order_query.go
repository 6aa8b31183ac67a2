package services

import (
	"context"
	"errors"
	"strings"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

var errOrderQueryOrdersRequired = errors.New("order query service: order repository is required")

// ErrOrderQueryInvalidInput indicates the caller supplied invalid input.
var ErrOrderQueryInvalidInput = errors.New("order query service: invalid input")

// ErrOrderQueryNotFound indicates the requested order does not exist.
var ErrOrderQueryNotFound = errors.New("order query service: not found")

// ErrOrderQueryUnavailable indicates the backing store cannot be reached.
var ErrOrderQueryUnavailable = errors.New("order query service: unavailable")

// OrderQueryServiceDeps wires read-side repositories for settlement lookups.
type OrderQueryServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments repositories.PaymentRepository
	Invoices repositories.InvoiceRepository
}

// OrderQueryService answers read-only questions about settled orders.
type OrderQueryService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	invoices repositories.InvoiceRepository
}

// NewOrderQueryService constructs an OrderQueryService enforcing dependency validation.
func NewOrderQueryService(deps OrderQueryServiceDeps) (*OrderQueryService, error) {
	if deps.Orders == nil {
		return nil, errOrderQueryOrdersRequired
	}
	return &OrderQueryService{
		orders:   deps.Orders,
		payments: deps.Payments,
		invoices: deps.Invoices,
	}, nil
}

// Get loads one order with its line snapshots.
func (s *OrderQueryService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, ErrOrderQueryInvalidInput
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// ListByCart returns every order cut from a cart, newest first.
func (s *OrderQueryService) ListByCart(ctx context.Context, cartID string) ([]domain.Order, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return nil, ErrOrderQueryInvalidInput
	}
	orders, err := s.orders.FindByCart(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, nil
		}
		return nil, s.translateRepoError(err)
	}
	return orders, nil
}

// Payments lists the money-movement rows recorded for an order.
func (s *OrderQueryService) Payments(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	if s.payments == nil {
		return nil, ErrOrderQueryUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, ErrOrderQueryInvalidInput
	}
	records, err := s.payments.ListByOrder(ctx, id)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return records, nil
}

// Invoices lists the fiscal documents issued for an order.
func (s *OrderQueryService) Invoices(ctx context.Context, orderID string) ([]domain.Invoice, error) {
	if s.invoices == nil {
		return nil, ErrOrderQueryUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, ErrOrderQueryInvalidInput
	}
	invoices, err := s.invoices.ListByOrder(ctx, id)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return invoices, nil
}

func (s *OrderQueryService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrOrderQueryNotFound
		}
	}
	return ErrOrderQueryUnavailable
}
