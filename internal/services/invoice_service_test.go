package services

import (
	"context"
	"errors"
	"testing"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

type stubCounterRepository struct {
	nextFunc func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFunc != nil {
		return s.nextFunc(ctx, counterID, step)
	}
	return 0, errors.New("not implemented")
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

func TestInvoiceServiceIssuesNumberedInvoice(t *testing.T) {
	var stored domain.Invoice
	invoices := &stubInvoiceRepository{
		insertFunc: func(ctx context.Context, invoice domain.Invoice) error {
			stored = invoice
			return nil
		},
	}
	counters := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			if counterID != "invoices" {
				t.Fatalf("unexpected counter id %q", counterID)
			}
			return 42, nil
		},
	}

	svc, err := NewInvoiceService(InvoiceServiceDeps{
		Invoices:    invoices,
		Counters:    counters,
		Clock:       testClock(),
		IDGenerator: sequentialIDs("iv"),
		Enabled:     true,
		CounterID:   "invoices",
		Prefix:      "INV",
	})
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	invoice, err := svc.Issue(context.Background(), domain.Order{
		ID:         "ord_1",
		CustomerID: "cust_1",
		Total:      22000,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if invoice.InvoiceNumber != "INV-000042" {
		t.Fatalf("expected INV-000042, got %q", invoice.InvoiceNumber)
	}
	if invoice.Amount != 22000 || invoice.Type != domain.InvoiceTypeDebit {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}
	if stored.ID == "" || stored.RetrievalKey == "" {
		t.Fatalf("expected stored invoice with id and retrieval key, got %+v", stored)
	}
}

func TestInvoiceServiceDisabled(t *testing.T) {
	svc, err := NewInvoiceService(InvoiceServiceDeps{
		Invoices: &stubInvoiceRepository{},
		Counters: &stubCounterRepository{},
		Clock:    testClock(),
		Enabled:  false,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	if _, err := svc.Issue(context.Background(), domain.Order{ID: "ord_1"}); !errors.Is(err, ErrInvoicingDisabled) {
		t.Fatalf("expected ErrInvoicingDisabled, got %v", err)
	}
}

func TestInvoiceServicePropagatesCounterFailure(t *testing.T) {
	counters := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			return 0, errors.New("counter exhausted")
		},
	}
	svc, err := NewInvoiceService(InvoiceServiceDeps{
		Invoices:  &stubInvoiceRepository{},
		Counters:  counters,
		Clock:     testClock(),
		Enabled:   true,
		CounterID: "invoices",
	})
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	if _, err := svc.Issue(context.Background(), domain.Order{ID: "ord_1"}); err == nil {
		t.Fatal("expected counter failure to propagate")
	}
}
