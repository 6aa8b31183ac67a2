package services

import (
	"context"
	"errors"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

// Scope names one of the two reconciled sections of a cart.
type Scope string

const (
	// ScopeProducts covers retail line items, including ad-hoc service lines.
	ScopeProducts Scope = "products"
	// ScopeAppointments covers booked and ad-hoc appointment lines.
	ScopeAppointments Scope = "appointments"
)

// Finalizer turns a settled checkout into an immutable order.
type Finalizer interface {
	Finalize(ctx context.Context, cmd FinalizeCommand) (domain.Order, error)
}

// Invoicer issues tax invoices for completed orders. Issuance may be disabled
// by configuration, in which case Issue returns ErrInvoicingDisabled.
type Invoicer interface {
	Issue(ctx context.Context, order domain.Order) (domain.Invoice, error)
}

// ErrInvoicingDisabled indicates invoice issuance is switched off.
var ErrInvoicingDisabled = errors.New("invoice service: disabled")

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
