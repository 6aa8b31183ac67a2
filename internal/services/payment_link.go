package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/messaging"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

var (
	errLinkOrdersRequired     = errors.New("payment link service: order repository is required")
	errLinkPaymentsRequired   = errors.New("payment link service: payment repository is required")
	errLinkCustomersRequired  = errors.New("payment link service: customer repository is required")
	errLinkDispatcherRequired = errors.New("payment link service: dispatcher is required")
	errLinkBaseURLRequired    = errors.New("payment link service: base url is required")
	errLinkClockRequired      = errors.New("payment link service: clock is required")
)

// ErrLinkInvalidInput indicates the caller supplied invalid input.
var ErrLinkInvalidInput = errors.New("payment link service: invalid input")

// ErrLinkDispatchFailed indicates no recipient received the link.
var ErrLinkDispatchFailed = errors.New("payment link service: dispatch failed")

// PollOutcome is the terminal state of a payment-link poll.
type PollOutcome string

const (
	// PollOutcomePaid means the order flipped to a settled status in time.
	PollOutcomePaid PollOutcome = "paid"
	// PollOutcomeTimeout means the wall-clock ceiling elapsed first.
	PollOutcomeTimeout PollOutcome = "timeout"
	// PollOutcomeCancelled means the owner stopped the poll.
	PollOutcomeCancelled PollOutcome = "cancelled"
)

// PaymentLinkServiceDeps wires delivery and polling for self-service payment links.
type PaymentLinkServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	Customers  repositories.CustomerRepository
	Dispatcher messaging.Dispatcher
	BaseURL    string
	// Interval is the fixed delay between status reads.
	Interval time.Duration
	// Ceiling bounds the total polling time measured on the wall clock.
	Ceiling time.Duration
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

// PaymentLinkService builds, delivers, and watches self-service payment links.
type PaymentLinkService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	customers  repositories.CustomerRepository
	dispatcher messaging.Dispatcher
	baseURL    string
	interval   time.Duration
	ceiling    time.Duration
	now        func() time.Time
	log        func(context.Context, string, map[string]any)
}

// NewPaymentLinkService constructs a PaymentLinkService enforcing dependency validation.
func NewPaymentLinkService(deps PaymentLinkServiceDeps) (*PaymentLinkService, error) {
	if deps.Orders == nil {
		return nil, errLinkOrdersRequired
	}
	if deps.Payments == nil {
		return nil, errLinkPaymentsRequired
	}
	if deps.Customers == nil {
		return nil, errLinkCustomersRequired
	}
	if deps.Dispatcher == nil {
		return nil, errLinkDispatcherRequired
	}
	if deps.Clock == nil {
		return nil, errLinkClockRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if baseURL == "" {
		return nil, errLinkBaseURLRequired
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ceiling := deps.Ceiling
	if ceiling <= 0 {
		ceiling = 3 * time.Minute
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PaymentLinkService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		customers:  deps.Customers,
		dispatcher: deps.Dispatcher,
		baseURL:    baseURL,
		interval:   interval,
		ceiling:    ceiling,
		now:        func() time.Time { return deps.Clock().UTC() },
		log:        logger,
	}, nil
}

// BuildURL derives the self-service payment page address for a cart. The URL
// is a pure function of the cart id and the invoice flag.
func (s *PaymentLinkService) BuildURL(cartID string, withInvoice bool) string {
	url := fmt.Sprintf("%s/%s", s.baseURL, strings.TrimSpace(cartID))
	if withInvoice {
		url += "?invoice=1"
	}
	return url
}

// Send delivers the payment link to the operator-selected recipients.
func (s *PaymentLinkService) Send(ctx context.Context, cart domain.Cart, amount int64, withInvoice bool, sel RecipientSelection) ([]messaging.DeliveryReport, error) {
	if s == nil || s.dispatcher == nil {
		return nil, ErrLinkDispatchFailed
	}
	if strings.TrimSpace(cart.ID) == "" || strings.TrimSpace(cart.CustomerID) == "" {
		return nil, ErrLinkInvalidInput
	}

	recipients, err := resolveRecipients(ctx, s.customers, cart.CustomerID, sel)
	if err != nil {
		return nil, err
	}

	url := s.BuildURL(cart.ID, withInvoice)
	reports, err := s.dispatcher.Dispatch(ctx, messaging.Dispatch{
		Template:   messaging.TemplatePaymentLink,
		CartID:     cart.ID,
		CustomerID: cart.CustomerID,
		Recipients: recipients,
		Fields: map[string]string{
			"url":    url,
			"amount": fmt.Sprintf("%d", amount),
		},
	})
	if err != nil {
		return reports, fmt.Errorf("%w: %v", ErrLinkDispatchFailed, err)
	}

	s.log(ctx, "payment_link.sent", map[string]any{
		"cartId":     cart.ID,
		"url":        url,
		"recipients": len(recipients),
	})
	return reports, nil
}

// StartPolling watches the order at a fixed interval until it reads as paid,
// the ceiling elapses, or the handle is stopped. onPaid runs at most once,
// from the polling goroutine.
func (s *PaymentLinkService) StartPolling(ctx context.Context, orderID string, onPaid func(domain.Order)) *PollHandle {
	pollCtx, cancel := context.WithCancel(ctx)
	handle := &PollHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.poll(pollCtx, orderID, onPaid, handle)
	return handle
}

func (s *PaymentLinkService) poll(ctx context.Context, orderID string, onPaid func(domain.Order), handle *PollHandle) {
	defer close(handle.done)

	deadline := s.now().Add(s.ceiling)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			handle.finish(PollOutcomeCancelled)
			s.log(ctx, "payment_link.poll_cancelled", map[string]any{"orderId": orderID})
			return
		case <-ticker.C:
			if !s.now().Before(deadline) {
				handle.finish(PollOutcomeTimeout)
				s.log(ctx, "payment_link.poll_timeout", map[string]any{"orderId": orderID})
				return
			}

			order, err := s.orders.FindByID(ctx, orderID)
			if err != nil {
				// Transient read failures just wait for the next tick.
				continue
			}
			if domain.IsPaidLike(string(order.Status)) {
				handle.finish(PollOutcomePaid)
				if err := s.payments.MarkPaidByOrder(ctx, orderID, s.now()); err != nil {
					s.log(ctx, "payment_link.payment_flip_failed", map[string]any{
						"orderId": orderID,
						"error":   err.Error(),
					})
				}
				s.log(ctx, "payment_link.poll_paid", map[string]any{"orderId": orderID})
				if onPaid != nil {
					onPaid(order)
				}
				return
			}
		}
	}
}

// PollHandle owns a running payment-link poll. Stop is safe to call more
// than once and after the poll has already finished.
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome PollOutcome
}

// Stop cancels the poll.
func (h *PollHandle) Stop() {
	h.cancel()
}

// Wait blocks until the poll finishes and returns its outcome.
func (h *PollHandle) Wait() PollOutcome {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Done exposes completion for select loops.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

func (h *PollHandle) finish(outcome PollOutcome) {
	h.mu.Lock()
	h.outcome = outcome
	h.mu.Unlock()
}
