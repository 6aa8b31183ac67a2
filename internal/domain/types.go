package domain

import (
	"strings"
	"time"
)

// CartStatus tracks the lifecycle of a point-of-sale cart.
type CartStatus string

const (
	// CartStatusActive marks a cart that is still being edited at the counter.
	CartStatusActive CartStatus = "active"
	// CartStatusCompleted marks a cart that has been settled into an order.
	CartStatusCompleted CartStatus = "completed"
)

// Cart is the header row of a customer's open sale.
type Cart struct {
	ID           string
	CustomerID   string
	Status       CartStatus
	Items        []CartItem
	Appointments []CartAppointment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Billable reports whether the cart carries at least one chargeable line.
func (c Cart) Billable() bool {
	return len(c.Items) > 0 || len(c.Appointments) > 0
}

// CartItem is a retail product line. UnitPrice is in the smallest currency
// unit (agorot); Quantity is always a whole number of units.
type CartItem struct {
	ID         string
	CartID     string
	ProductRef *string
	Name       string
	Quantity   int
	UnitPrice  int64
}

// Total returns the extended line price.
func (i CartItem) Total() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// AppointmentKind discriminates the two schedule books appointments come from.
type AppointmentKind string

const (
	AppointmentKindGrooming AppointmentKind = "grooming"
	AppointmentKindDaycare  AppointmentKind = "daycare"
)

// AppointmentRef points at a schedule entry in one of the appointment books.
type AppointmentRef struct {
	Kind AppointmentKind
	ID   string
}

// CartAppointment is a service line attached to the cart. Ref is nil for an
// ad-hoc service sold without a schedule entry; Label carries its display name.
type CartAppointment struct {
	ID     string
	CartID string
	Ref    *AppointmentRef
	Label  string
	Price  int64
}

// AdHoc reports whether the line was improvised at the counter rather than
// pulled from a schedule book.
func (a CartAppointment) AdHoc() bool {
	return a.Ref == nil
}

// Appointment is the schedule-book read model the cart pulls service lines from.
type Appointment struct {
	Ref         AppointmentRef
	CustomerID  string
	ServiceName string
	Price       int64
	StartsAt    time.Time
}

// OrderStatus tracks settlement of a finalized order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
)

// IsPaidLike reports whether a free-form status string from an order record
// should be treated as settled. Remote writers spell the paid state several
// ways, so matching is case-insensitive and substring based.
func IsPaidLike(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return false
	}
	for _, marker := range []string{"paid", "completed", "success", "approved"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// Order is the immutable settlement record cut from a cart at checkout.
type Order struct {
	ID           string
	CartID       string
	CustomerID   string
	Status       OrderStatus
	Method       PaymentMethod
	Subtotal     int64
	Total        int64
	Items        []OrderLine
	Appointments []OrderLine
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderLine is a by-value snapshot of a cart line at finalize time. Later
// edits to products or appointments never reach it.
type OrderLine struct {
	Name           string
	ProductRef     *string
	AppointmentRef *AppointmentRef
	Quantity       int
	UnitPrice      int64
	Total          int64
}

// PaymentMethod enumerates the settlement channels offered at the counter.
type PaymentMethod string

const (
	PaymentMethodWallet       PaymentMethod = "wallet_push"
	PaymentMethodHostedPage   PaymentMethod = "hosted_page"
	PaymentMethodSavedCard    PaymentMethod = "saved_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodPaymentLink  PaymentMethod = "payment_link"
)

// PaymentCategory groups methods the way the cashier picks them.
type PaymentCategory string

const (
	PaymentCategoryApps   PaymentCategory = "apps"
	PaymentCategoryCredit PaymentCategory = "credit"
	PaymentCategoryBank   PaymentCategory = "bank"
)

// Settled reports whether the method collects funds at the counter rather
// than requesting them from the customer.
func (m PaymentMethod) Settled() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodSavedCard, PaymentMethodHostedPage:
		return true
	default:
		return false
	}
}

// PaymentStatus tracks whether a payment record has collected funds.
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

// PaymentRecord is the money-movement row written alongside an order.
type PaymentRecord struct {
	ID         string
	OrderID    string
	CartID     string
	CustomerID string
	Amount     int64
	Method     PaymentMethod
	Status     PaymentStatus
	Metadata   map[string]string
	CreatedAt  time.Time
}

// InvoiceType distinguishes charge documents from refund documents.
type InvoiceType string

const (
	InvoiceTypeDebit  InvoiceType = "debit"
	InvoiceTypeCredit InvoiceType = "credit"
)

// Invoice is the fiscal document issued after settlement.
type Invoice struct {
	ID            string
	OrderID       string
	CustomerID    string
	Type          InvoiceType
	Amount        int64
	InvoiceNumber string
	RetrievalKey  string
	CreatedAt     time.Time
}

// CustomerContact is a person reachable for payment requests.
type CustomerContact struct {
	ID    string
	Name  string
	Phone string
}

// StoredCard is a tokenised card on file with the payment gateway.
type StoredCard struct {
	Token string
	Brand string
	Last4 string
}

// HealthStatus summarises a dependency probe result.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck captures a single dependency probe.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates probe results for readiness reporting.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
