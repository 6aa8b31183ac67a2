package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

var (
	errInvoiceRepositoryRequired = errors.New("invoice service: repository is required")
	errInvoiceCountersRequired   = errors.New("invoice service: counter repository is required")
	errInvoiceClockRequired      = errors.New("invoice service: clock is required")
	errInvoiceCounterIDRequired  = errors.New("invoice service: counter id is required")
)

// ErrInvoiceInvalidInput indicates the caller supplied invalid input.
var ErrInvoiceInvalidInput = errors.New("invoice service: invalid input")

// ErrInvoiceUnavailable indicates the backing store cannot be reached.
var ErrInvoiceUnavailable = errors.New("invoice service: unavailable")

// InvoiceServiceDeps wires persistence and numbering for invoice issuance.
type InvoiceServiceDeps struct {
	Invoices    repositories.InvoiceRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	// Enabled switches issuance on. When false Issue returns
	// ErrInvoicingDisabled without touching the store.
	Enabled   bool
	CounterID string
	Prefix    string
}

type invoiceService struct {
	invoices  repositories.InvoiceRepository
	counters  repositories.CounterRepository
	now       func() time.Time
	newID     func() string
	log       func(context.Context, string, map[string]any)
	enabled   bool
	counterID string
	prefix    string
}

// NewInvoiceService constructs an Invoicer enforcing dependency validation.
func NewInvoiceService(deps InvoiceServiceDeps) (Invoicer, error) {
	if deps.Invoices == nil {
		return nil, errInvoiceRepositoryRequired
	}
	if deps.Counters == nil {
		return nil, errInvoiceCountersRequired
	}
	if deps.Clock == nil {
		return nil, errInvoiceClockRequired
	}

	counterID := strings.TrimSpace(deps.CounterID)
	if deps.Enabled && counterID == "" {
		return nil, errInvoiceCounterIDRequired
	}

	prefix := strings.TrimSpace(deps.Prefix)
	if prefix == "" {
		prefix = "INV"
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		invoices:  deps.Invoices,
		counters:  deps.Counters,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		log:       logger,
		enabled:   deps.Enabled,
		counterID: counterID,
		prefix:    prefix,
	}, nil
}

// Issue numbers and stores a debit invoice for the order.
func (s *invoiceService) Issue(ctx context.Context, order domain.Order) (domain.Invoice, error) {
	if s == nil || s.invoices == nil {
		return domain.Invoice{}, ErrInvoiceUnavailable
	}
	if !s.enabled {
		return domain.Invoice{}, ErrInvoicingDisabled
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Invoice{}, ErrInvoiceInvalidInput
	}

	seq, err := s.counters.Next(ctx, s.counterID, 1)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("next invoice number: %w", err)
	}

	invoice := domain.Invoice{
		ID:            "inv_" + s.newID(),
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Type:          domain.InvoiceTypeDebit,
		Amount:        order.Total,
		InvoiceNumber: fmt.Sprintf("%s-%06d", s.prefix, seq),
		RetrievalKey:  strings.ToLower(s.newID()),
		CreatedAt:     s.now(),
	}

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			return domain.Invoice{}, ErrInvoiceUnavailable
		}
		return domain.Invoice{}, err
	}

	s.log(ctx, "invoice.issued", map[string]any{
		"invoiceId": invoice.ID,
		"orderId":   order.ID,
		"number":    invoice.InvoiceNumber,
	})
	return invoice, nil
}
