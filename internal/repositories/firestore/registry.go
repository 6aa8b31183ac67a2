package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/firestore"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

// Registry bundles every Firestore-backed repository behind the
// repositories.Registry contract.
type Registry struct {
	provider     *pfirestore.Provider
	carts        *CartRepository
	orders       *OrderRepository
	payments     *PaymentRepository
	invoices     *InvoiceRepository
	appointments *AppointmentRepository
	customers    *CustomerRepository
	counters     *CounterRepository
	health       repositories.HealthRepository
}

// NewRegistry constructs the repository set against a shared Firestore provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	if reg.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, fmt.Errorf("build payment repository: %w", err)
	}
	if reg.invoices, err = NewInvoiceRepository(provider); err != nil {
		return nil, fmt.Errorf("build invoice repository: %w", err)
	}
	if reg.appointments, err = NewAppointmentRepository(provider); err != nil {
		return nil, fmt.Errorf("build appointment repository: %w", err)
	}
	if reg.customers, err = NewCustomerRepository(provider); err != nil {
		return nil, fmt.Errorf("build customer repository: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}
	return reg, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx groups repository operations inside a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) Carts() repositories.CartRepository               { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository         { return r.payments }
func (r *Registry) Invoices() repositories.InvoiceRepository         { return r.invoices }
func (r *Registry) Appointments() repositories.AppointmentRepository { return r.appointments }
func (r *Registry) Customers() repositories.CustomerRepository       { return r.customers }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

var _ repositories.Registry = (*Registry)(nil)
