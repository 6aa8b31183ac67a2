package repositories

import (
	"context"
	"time"

	domain "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Invoices() InvoiceRepository
	Appointments() AppointmentRepository
	Customers() CustomerRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart header, item, and appointment persistence.
// ReplaceItems and ReplaceAppointments are replace-all operations: every
// persisted row in scope is deleted and the provided set reinserted.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)
	FindActiveByCustomer(ctx context.Context, customerID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, cartID string, items []domain.CartItem) error
	ReplaceAppointments(ctx context.Context, cartID string, appointments []domain.CartAppointment) error
	MarkCompleted(ctx context.Context, cartID string, completedAt time.Time) error
}

// OrderRepository persists settlement records and their line snapshots.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCart(ctx context.Context, cartID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error
}

// PaymentRepository stores money-movement rows written alongside orders.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.PaymentRecord) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error)
	MarkPaidByOrder(ctx context.Context, orderID string, paidAt time.Time) error
}

// InvoiceRepository stores issued fiscal documents.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Invoice, error)
}

// AppointmentRepository reads the schedule books and writes back price changes.
type AppointmentRepository interface {
	Find(ctx context.Context, ref domain.AppointmentRef) (domain.Appointment, error)
	ListOpenByCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error)
	UpdatePrice(ctx context.Context, ref domain.AppointmentRef, price int64, updatedAt time.Time) error
}

// CustomerRepository reads contact and stored-card data for a customer.
type CustomerRepository interface {
	ListContacts(ctx context.Context, customerID string) ([]domain.CustomerContact, error)
	GetStoredCard(ctx context.Context, customerID string) (domain.StoredCard, error)
	GetPrimaryContact(ctx context.Context, customerID string) (domain.CustomerContact, error)
}

// CounterRepository provides transaction-safe sequence numbers (invoice numbering).
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
