package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	pfirestore "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/firestore"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

const paymentCollection = "payments"

// PaymentRepository stores money-movement rows written alongside orders.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection)
	return &PaymentRepository{base: base}, nil
}

// Insert writes a payment record.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.PaymentRecord) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return errors.New("payment repository: payment id is required")
	}

	doc := paymentDocument{
		OrderID:    strings.TrimSpace(payment.OrderID),
		CartID:     strings.TrimSpace(payment.CartID),
		CustomerID: strings.TrimSpace(payment.CustomerID),
		Amount:     payment.Amount,
		Method:     string(payment.Method),
		Status:     string(payment.Status),
		Metadata:   payment.Metadata,
		CreatedAt:  payment.CreatedAt.UTC(),
	}
	_, err := r.base.Set(ctx, id, doc)
	return err
}

// ListByOrder returns payment records for the order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", id)
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.PaymentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, domain.PaymentRecord{
			ID:         doc.ID,
			OrderID:    doc.Data.OrderID,
			CartID:     doc.Data.CartID,
			CustomerID: doc.Data.CustomerID,
			Amount:     doc.Data.Amount,
			Method:     domain.PaymentMethod(doc.Data.Method),
			Status:     domain.PaymentStatus(doc.Data.Status),
			Metadata:   doc.Data.Metadata,
			CreatedAt:  doc.Data.CreatedAt,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

// MarkPaidByOrder flips every still-unpaid record of the order to paid.
// Used when an out-of-band settlement (payment link) is observed after the
// record was written pending.
func (r *PaymentRepository) MarkPaidByOrder(ctx context.Context, orderID string, paidAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", id).
			Where("status", "==", string(domain.PaymentStatusUnpaid))
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if _, err := r.base.Update(ctx, doc.ID, []firestore.Update{
			{Path: "status", Value: string(domain.PaymentStatusPaid)},
			{Path: "paidAt", Value: paidAt.UTC()},
		}); err != nil {
			return err
		}
	}
	return nil
}

type paymentDocument struct {
	OrderID    string            `firestore:"orderId"`
	CartID     string            `firestore:"cartId,omitempty"`
	CustomerID string            `firestore:"customerId,omitempty"`
	Amount     int64             `firestore:"amount"`
	Method     string            `firestore:"method"`
	Status     string            `firestore:"status"`
	Metadata   map[string]string `firestore:"metadata,omitempty"`
	CreatedAt  time.Time         `firestore:"createdAt"`
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
