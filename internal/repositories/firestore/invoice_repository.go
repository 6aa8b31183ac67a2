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

const invoiceCollection = "invoices"

// InvoiceRepository stores issued fiscal documents.
type InvoiceRepository struct {
	base *pfirestore.BaseRepository[invoiceDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection)
	return &InvoiceRepository{base: base}, nil
}

// Insert writes an issued invoice.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.base == nil {
		return errors.New("invoice repository not initialised")
	}
	id := strings.TrimSpace(invoice.ID)
	if id == "" {
		return errors.New("invoice repository: invoice id is required")
	}

	doc := invoiceDocument{
		OrderID:       strings.TrimSpace(invoice.OrderID),
		CustomerID:    strings.TrimSpace(invoice.CustomerID),
		Type:          string(invoice.Type),
		Amount:        invoice.Amount,
		InvoiceNumber: strings.TrimSpace(invoice.InvoiceNumber),
		RetrievalKey:  strings.TrimSpace(invoice.RetrievalKey),
		CreatedAt:     invoice.CreatedAt.UTC(),
	}
	_, err := r.base.Set(ctx, id, doc)
	return err
}

// ListByOrder returns invoices for the order, oldest first.
func (r *InvoiceRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Invoice, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("invoice repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, errors.New("invoice repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", id)
	})
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		invoices = append(invoices, domain.Invoice{
			ID:            doc.ID,
			OrderID:       doc.Data.OrderID,
			CustomerID:    doc.Data.CustomerID,
			Type:          domain.InvoiceType(doc.Data.Type),
			Amount:        doc.Data.Amount,
			InvoiceNumber: doc.Data.InvoiceNumber,
			RetrievalKey:  doc.Data.RetrievalKey,
			CreatedAt:     doc.Data.CreatedAt,
		})
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].CreatedAt.Before(invoices[j].CreatedAt) })
	return invoices, nil
}

type invoiceDocument struct {
	OrderID       string    `firestore:"orderId"`
	CustomerID    string    `firestore:"customerId,omitempty"`
	Type          string    `firestore:"type"`
	Amount        int64     `firestore:"amount"`
	InvoiceNumber string    `firestore:"invoiceNumber,omitempty"`
	RetrievalKey  string    `firestore:"retrievalKey,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)
