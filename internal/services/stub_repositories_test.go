package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/payments"
)

type stubCartRepository struct {
	upsertFunc              func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error)
	getFunc                 func(ctx context.Context, cartID string) (domain.Cart, error)
	findActiveFunc          func(ctx context.Context, customerID string) (domain.Cart, error)
	replaceItemsFunc        func(ctx context.Context, cartID string, items []domain.CartItem) error
	replaceAppointmentsFunc func(ctx context.Context, cartID string, appointments []domain.CartAppointment) error
	markCompletedFunc       func(ctx context.Context, cartID string, completedAt time.Time) error
}

func (s *stubCartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cart, expected)
	}
	return cart, nil
}

func (s *stubCartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, cartID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) FindActiveByCustomer(ctx context.Context, customerID string) (domain.Cart, error) {
	if s.findActiveFunc != nil {
		return s.findActiveFunc(ctx, customerID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) ReplaceItems(ctx context.Context, cartID string, items []domain.CartItem) error {
	if s.replaceItemsFunc != nil {
		return s.replaceItemsFunc(ctx, cartID, items)
	}
	return nil
}

func (s *stubCartRepository) ReplaceAppointments(ctx context.Context, cartID string, appointments []domain.CartAppointment) error {
	if s.replaceAppointmentsFunc != nil {
		return s.replaceAppointmentsFunc(ctx, cartID, appointments)
	}
	return nil
}

func (s *stubCartRepository) MarkCompleted(ctx context.Context, cartID string, completedAt time.Time) error {
	if s.markCompletedFunc != nil {
		return s.markCompletedFunc(ctx, cartID, completedAt)
	}
	return nil
}

type stubOrderRepository struct {
	insertFunc       func(ctx context.Context, order domain.Order) error
	findByIDFunc     func(ctx context.Context, orderID string) (domain.Order, error)
	findByCartFunc   func(ctx context.Context, cartID string) ([]domain.Order, error)
	updateStatusFunc func(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) FindByCart(ctx context.Context, cartID string) ([]domain.Order, error) {
	if s.findByCartFunc != nil {
		return s.findByCartFunc(ctx, cartID)
	}
	return nil, nil
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, orderID, status, updatedAt)
	}
	return nil
}

type stubPaymentRepository struct {
	insertFunc      func(ctx context.Context, payment domain.PaymentRecord) error
	listByOrderFunc func(ctx context.Context, orderID string) ([]domain.PaymentRecord, error)
	markPaidFunc    func(ctx context.Context, orderID string, paidAt time.Time) error
}

func (s *stubPaymentRepository) Insert(ctx context.Context, payment domain.PaymentRecord) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	if s.listByOrderFunc != nil {
		return s.listByOrderFunc(ctx, orderID)
	}
	return nil, nil
}

func (s *stubPaymentRepository) MarkPaidByOrder(ctx context.Context, orderID string, paidAt time.Time) error {
	if s.markPaidFunc != nil {
		return s.markPaidFunc(ctx, orderID, paidAt)
	}
	return nil
}

type stubInvoiceRepository struct {
	insertFunc      func(ctx context.Context, invoice domain.Invoice) error
	listByOrderFunc func(ctx context.Context, orderID string) ([]domain.Invoice, error)
}

func (s *stubInvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, invoice)
	}
	return nil
}

func (s *stubInvoiceRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Invoice, error) {
	if s.listByOrderFunc != nil {
		return s.listByOrderFunc(ctx, orderID)
	}
	return nil, nil
}

type stubAppointmentRepository struct {
	findFunc        func(ctx context.Context, ref domain.AppointmentRef) (domain.Appointment, error)
	listOpenFunc    func(ctx context.Context, customerID string) ([]domain.Appointment, error)
	updatePriceFunc func(ctx context.Context, ref domain.AppointmentRef, price int64, updatedAt time.Time) error
}

func (s *stubAppointmentRepository) Find(ctx context.Context, ref domain.AppointmentRef) (domain.Appointment, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, ref)
	}
	return domain.Appointment{}, errors.New("not implemented")
}

func (s *stubAppointmentRepository) ListOpenByCustomer(ctx context.Context, customerID string) ([]domain.Appointment, error) {
	if s.listOpenFunc != nil {
		return s.listOpenFunc(ctx, customerID)
	}
	return nil, nil
}

func (s *stubAppointmentRepository) UpdatePrice(ctx context.Context, ref domain.AppointmentRef, price int64, updatedAt time.Time) error {
	if s.updatePriceFunc != nil {
		return s.updatePriceFunc(ctx, ref, price, updatedAt)
	}
	return nil
}

type stubCustomerRepository struct {
	listContactsFunc  func(ctx context.Context, customerID string) ([]domain.CustomerContact, error)
	getStoredCardFunc func(ctx context.Context, customerID string) (domain.StoredCard, error)
	getPrimaryFunc    func(ctx context.Context, customerID string) (domain.CustomerContact, error)
}

func (s *stubCustomerRepository) ListContacts(ctx context.Context, customerID string) ([]domain.CustomerContact, error) {
	if s.listContactsFunc != nil {
		return s.listContactsFunc(ctx, customerID)
	}
	return nil, nil
}

func (s *stubCustomerRepository) GetStoredCard(ctx context.Context, customerID string) (domain.StoredCard, error) {
	if s.getStoredCardFunc != nil {
		return s.getStoredCardFunc(ctx, customerID)
	}
	return domain.StoredCard{}, errors.New("not implemented")
}

func (s *stubCustomerRepository) GetPrimaryContact(ctx context.Context, customerID string) (domain.CustomerContact, error) {
	if s.getPrimaryFunc != nil {
		return s.getPrimaryFunc(ctx, customerID)
	}
	return domain.CustomerContact{}, errors.New("not implemented")
}

type stubGateway struct {
	handshakeFunc func(ctx context.Context, req payments.HandshakeRequest) (payments.HandshakeSession, error)
	chargeFunc    func(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResult, error)
}

func (s *stubGateway) Handshake(ctx context.Context, req payments.HandshakeRequest) (payments.HandshakeSession, error) {
	if s.handshakeFunc != nil {
		return s.handshakeFunc(ctx, req)
	}
	return payments.HandshakeSession{}, errors.New("not implemented")
}

func (s *stubGateway) Charge(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResult, error) {
	if s.chargeFunc != nil {
		return s.chargeFunc(ctx, req)
	}
	return payments.ChargeResult{}, errors.New("not implemented")
}

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + strconv.Itoa(n)
	}
}
