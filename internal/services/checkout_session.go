package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/payments"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

var (
	errCheckoutReconcilerRequired = errors.New("checkout service: reconciler is required")
	errCheckoutOrdersRequired     = errors.New("checkout service: order repository is required")
	errCheckoutFinalizerRequired  = errors.New("checkout service: finalizer is required")
	errCheckoutClockRequired      = errors.New("checkout service: clock is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutReadOnly indicates the cart was already settled, so the session
// only allows reads.
var ErrCheckoutReadOnly = errors.New("checkout service: cart is read-only")

// ErrCheckoutWrongStage indicates the operation does not apply at the
// session's current stage.
var ErrCheckoutWrongStage = errors.New("checkout service: wrong stage")

// ErrCheckoutNotBillable indicates the cart has no chargeable line.
var ErrCheckoutNotBillable = errors.New("checkout service: cart has no billable line")

// ErrCheckoutClosed indicates the session has already been settled and closed.
var ErrCheckoutClosed = errors.New("checkout service: session closed")

// CheckoutServiceDeps wires collaborators for checkout sessions.
type CheckoutServiceDeps struct {
	Reconciler *Reconciler
	Orders     repositories.OrderRepository
	Customers  repositories.CustomerRepository
	Finalizer  Finalizer
	Gateway    payments.Gateway
	Links      *PaymentLinkService
	Dispatcher walletDispatcher
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
	// Currency is the ISO code charged through the gateway.
	Currency         string
	HostedSuccessURL string
	HostedCancelURL  string
}

// CheckoutService opens checkout sessions over carts and drives them through
// the review, category, method, and confirm stages.
type CheckoutService struct {
	rec        *Reconciler
	orders     repositories.OrderRepository
	customers  repositories.CustomerRepository
	finalizer  Finalizer
	gateway    payments.Gateway
	links      *PaymentLinkService
	dispatcher walletDispatcher
	now        func() time.Time
	log        func(context.Context, string, map[string]any)
	currency   string
	successURL string
	cancelURL  string

	mu       sync.Mutex
	sessions map[string]*CheckoutSession
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (*CheckoutService, error) {
	if deps.Reconciler == nil {
		return nil, errCheckoutReconcilerRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Finalizer == nil {
		return nil, errCheckoutFinalizerRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "ILS"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CheckoutService{
		rec:        deps.Reconciler,
		orders:     deps.Orders,
		customers:  deps.Customers,
		finalizer:  deps.Finalizer,
		gateway:    deps.Gateway,
		links:      deps.Links,
		dispatcher: deps.Dispatcher,
		now:        func() time.Time { return deps.Clock().UTC() },
		log:        logger,
		currency:   currency,
		successURL: strings.TrimSpace(deps.HostedSuccessURL),
		cancelURL:  strings.TrimSpace(deps.HostedCancelURL),
		sessions:   map[string]*CheckoutSession{},
	}, nil
}

// Open starts (or returns) a checkout session for the cart. The session
// always opens at the review stage; a cart that already settled opens
// read-only.
func (s *CheckoutService) Open(ctx context.Context, cartID string) (*CheckoutSession, error) {
	if s == nil {
		return nil, ErrCheckoutInvalidInput
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return nil, ErrCheckoutInvalidInput
	}

	working, err := s.rec.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	readOnly := false
	existing, err := s.orders.FindByCart(ctx, id)
	if err != nil && !isRepoNotFound(err) {
		return nil, ErrFinalizerUnavailable
	}
	for _, order := range existing {
		if domain.IsPaidLike(string(order.Status)) {
			readOnly = true
			break
		}
	}

	session := &CheckoutSession{
		svc:      s,
		cartID:   id,
		working:  working,
		readOnly: readOnly,
		state:    WorkflowState{Stage: StageReview},
	}

	s.mu.Lock()
	prior := s.sessions[id]
	s.sessions[id] = session
	s.mu.Unlock()
	if prior != nil {
		prior.StopPolling()
	}

	s.log(ctx, "checkout.opened", map[string]any{
		"cartId":   id,
		"readOnly": readOnly,
	})
	return session, nil
}

// Session returns the open session for a cart, if any.
func (s *CheckoutService) Session(cartID string) (*CheckoutSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[strings.TrimSpace(cartID)]
	return session, ok
}

// Close tears down the cart's session: any background payment-link poll is
// cancelled and the session leaves the registry. Closing a cart with no open
// session reports false.
func (s *CheckoutService) Close(ctx context.Context, cartID string) bool {
	id := strings.TrimSpace(cartID)
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	session.StopPolling()
	s.log(ctx, "checkout.session_closed", map[string]any{"cartId": id})
	return true
}

// CheckoutSession drives one cart through the checkout workflow. All methods
// serialise on the session mutex; the session owns any background poll
// started on its behalf.
type CheckoutSession struct {
	svc      *CheckoutService
	cartID   string
	working  *WorkingCart
	readOnly bool

	mu          sync.Mutex
	state       WorkflowState
	order       *domain.Order
	poll        *PollHandle
	hostedToken string
}

// CartID returns the cart this session settles.
func (c *CheckoutSession) CartID() string {
	return c.cartID
}

// ReadOnly reports whether the cart was already settled before the session opened.
func (c *CheckoutSession) ReadOnly() bool {
	return c.readOnly
}

// State returns the session's current workflow position.
func (c *CheckoutSession) State() WorkflowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cart returns a snapshot of the working copy.
func (c *CheckoutSession) Cart() domain.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working.Cart()
}

// Subtotal returns the working copy's running total.
func (c *CheckoutSession) Subtotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working.Subtotal()
}

// AdHocServices lists the decoded ad-hoc service lines of the working copy.
func (c *CheckoutSession) AdHocServices() []AdHocService {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working.AdHocServices()
}

// Order returns the settlement cut by this session, if already closed.
func (c *CheckoutSession) Order() (domain.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.order == nil {
		return domain.Order{}, false
	}
	return *c.order, true
}

// Edit applies a mutation to the working cart. Edits are only allowed at the
// review stage and never on a read-only session.
func (c *CheckoutSession) Edit(fn func(*WorkingCart) error) error {
	if fn == nil {
		return ErrCheckoutInvalidInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return ErrCheckoutReadOnly
	}
	if c.state.Stage != StageReview {
		return ErrCheckoutWrongStage
	}
	return fn(c.working)
}

// Dirty reports whether the scope has uncommitted edits.
func (c *CheckoutSession) Dirty(scope Scope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.working.IsDirty(scope)
}

// Advance moves review to category selection. The cart must carry at least
// one billable line, and any outstanding edits are committed on the way.
func (c *CheckoutSession) Advance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return ErrCheckoutReadOnly
	}
	if c.state.Stage != StageReview {
		return ErrCheckoutWrongStage
	}
	if !c.working.Cart().Billable() {
		return ErrCheckoutNotBillable
	}
	if err := c.working.CommitAll(ctx); err != nil {
		return err
	}
	c.state.Stage = StageCategory
	return nil
}

// SelectCategory records the payment family and moves to method selection.
func (c *CheckoutSession) SelectCategory(category domain.PaymentCategory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return ErrCheckoutReadOnly
	}
	if c.state.Stage != StageCategory {
		return ErrCheckoutWrongStage
	}
	if len(MethodsFor(category)) == 0 {
		return ErrCheckoutInvalidInput
	}
	c.state.Category = category
	c.state.Stage = StageMethod
	return nil
}

// SelectMethod records the payment method and moves to confirmation. The
// method must belong to the selected category.
func (c *CheckoutSession) SelectMethod(method domain.PaymentMethod, receiptRequested bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return ErrCheckoutReadOnly
	}
	if c.state.Stage != StageMethod {
		return ErrCheckoutWrongStage
	}
	if !categoryOffers(c.state.Category, method) {
		return ErrCheckoutInvalidInput
	}
	c.state.Method = method
	c.state.ReceiptRequested = receiptRequested
	c.state.Stage = StageConfirm
	return nil
}

// Back steps one stage towards review, wiping choices made ahead.
func (c *CheckoutSession) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Stage == StageClosed {
		return ErrCheckoutClosed
	}
	if c.state.Stage == StageReview {
		return ErrCheckoutWrongStage
	}
	target := c.state.Stage - 1
	c.state.clearAhead(target)
	c.state.Stage = target
	return nil
}

// JumpTo moves directly to an earlier stage, wiping choices made ahead.
func (c *CheckoutSession) JumpTo(target Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Stage == StageClosed {
		return ErrCheckoutClosed
	}
	if target < StageReview || target >= c.state.Stage {
		return ErrCheckoutInvalidInput
	}
	c.state.clearAhead(target)
	c.state.Stage = target
	return nil
}

// StopPolling cancels any background payment-link poll owned by the session.
func (c *CheckoutSession) StopPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPollLocked()
}

func (c *CheckoutSession) stopPollLocked() {
	if c.poll != nil {
		c.poll.Stop()
	}
}

// requireConfirm validates the session is at confirm with the given method.
// Callers hold the session mutex.
func (c *CheckoutSession) requireConfirm(method domain.PaymentMethod) error {
	if c.readOnly {
		return ErrCheckoutReadOnly
	}
	if c.state.Stage == StageClosed {
		return ErrCheckoutClosed
	}
	if c.state.Stage != StageConfirm {
		return ErrCheckoutWrongStage
	}
	if c.state.Method != method {
		return ErrCheckoutInvalidInput
	}
	return nil
}

func (c *CheckoutSession) closeLocked(order domain.Order) {
	c.order = &order
	c.state.Stage = StageClosed
}
