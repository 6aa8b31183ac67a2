package services

import (
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
)

// Stage is a step of the checkout workflow. Stages are ordered; moving back
// wipes every choice made at later stages.
type Stage int

const (
	// StageClosed is terminal: the cart has been settled into an order.
	StageClosed Stage = iota
	// StageReview shows the cart lines for final edits.
	StageReview
	// StageCategory picks the payment family.
	StageCategory
	// StageMethod picks the concrete payment method inside the family.
	StageMethod
	// StageConfirm executes the chosen method.
	StageConfirm
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case StageClosed:
		return "closed"
	case StageReview:
		return "review"
	case StageCategory:
		return "category"
	case StageMethod:
		return "method"
	case StageConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// WorkflowState is the full position of a checkout session in the workflow.
type WorkflowState struct {
	Stage            Stage
	Category         domain.PaymentCategory
	Method           domain.PaymentMethod
	AmountReceived   int64
	ReceiptRequested bool
}

// methodsByCategory maps each payment family to the methods it offers.
var methodsByCategory = map[domain.PaymentCategory][]domain.PaymentMethod{
	domain.PaymentCategoryApps:   {domain.PaymentMethodWallet, domain.PaymentMethodPaymentLink},
	domain.PaymentCategoryCredit: {domain.PaymentMethodHostedPage, domain.PaymentMethodSavedCard},
	domain.PaymentCategoryBank:   {domain.PaymentMethodBankTransfer, domain.PaymentMethodCash},
}

// MethodsFor lists the payment methods offered under a category, in display order.
func MethodsFor(category domain.PaymentCategory) []domain.PaymentMethod {
	methods := methodsByCategory[category]
	out := make([]domain.PaymentMethod, len(methods))
	copy(out, methods)
	return out
}

func categoryOffers(category domain.PaymentCategory, method domain.PaymentMethod) bool {
	for _, m := range methodsByCategory[category] {
		if m == method {
			return true
		}
	}
	return false
}

// clearAhead wipes every choice made at stages later than target.
func (w *WorkflowState) clearAhead(target Stage) {
	if target <= StageMethod {
		w.Method = ""
		w.AmountReceived = 0
		w.ReceiptRequested = false
	}
	if target <= StageCategory {
		w.Category = ""
	}
}
