package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/messaging"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/payments"
)

type walletDispatcher interface {
	Dispatch(ctx context.Context, d messaging.Dispatch) ([]messaging.DeliveryReport, error)
}

// ErrChannelUnavailable indicates the session's service lacks the dependency
// the chosen method needs (gateway, dispatcher, or link service).
var ErrChannelUnavailable = errors.New("checkout service: payment channel unavailable")

// ErrChargeDeclined wraps a gateway decline. The provider's message is kept
// verbatim inside the error text.
var ErrChargeDeclined = errors.New("checkout service: charge declined")

// ConfirmCash settles the cart with cash counted at the register.
func (c *CheckoutSession) ConfirmCash(ctx context.Context, amountReceived int64) (domain.Order, error) {
	return c.confirmCounted(ctx, domain.PaymentMethodCash, amountReceived)
}

// ConfirmBankTransfer settles the cart against a transfer the cashier has
// already verified.
func (c *CheckoutSession) ConfirmBankTransfer(ctx context.Context, amount int64) (domain.Order, error) {
	return c.confirmCounted(ctx, domain.PaymentMethodBankTransfer, amount)
}

func (c *CheckoutSession) confirmCounted(ctx context.Context, method domain.PaymentMethod, amount int64) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireConfirm(method); err != nil {
		return domain.Order{}, err
	}
	if amount <= 0 {
		return domain.Order{}, ErrCheckoutInvalidInput
	}

	order, err := c.svc.finalizer.Finalize(ctx, FinalizeCommand{
		Working:      c.working,
		Method:       method,
		Paid:         true,
		Amount:       amount,
		IssueInvoice: c.state.ReceiptRequested,
	})
	if err != nil {
		return domain.Order{}, err
	}

	c.state.AmountReceived = amount
	c.closeLocked(order)
	return order, nil
}

// ChargeSavedCard settles the cart synchronously against the card on file.
// The cashier may override the charged amount; zero falls back to the cart
// subtotal. A gateway decline surfaces the provider's message untouched and
// leaves the session at confirm for another attempt.
func (c *CheckoutSession) ChargeSavedCard(ctx context.Context, amount int64) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireConfirm(domain.PaymentMethodSavedCard); err != nil {
		return domain.Order{}, err
	}
	if c.svc.gateway == nil || c.svc.customers == nil {
		return domain.Order{}, ErrChannelUnavailable
	}
	if amount < 0 {
		return domain.Order{}, ErrCheckoutInvalidInput
	}
	if amount == 0 {
		amount = c.working.Subtotal()
	}

	cart := c.working.Cart()
	card, err := c.svc.customers.GetStoredCard(ctx, cart.CustomerID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: no card on file", ErrCheckoutInvalidInput)
		}
		return domain.Order{}, ErrChannelUnavailable
	}

	result, err := c.svc.gateway.Charge(ctx, payments.ChargeRequest{
		CardToken:      card.Token,
		Amount:         amount,
		Currency:       c.svc.currency,
		CustomerID:     cart.CustomerID,
		IdempotencyKey: "charge-" + cart.ID,
		Metadata:       map[string]string{"cartId": cart.ID},
	})
	if err != nil {
		if errors.Is(err, payments.ErrGatewayDeclined) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrChargeDeclined, result.Message)
		}
		return domain.Order{}, err
	}
	if result.Status != payments.StatusSucceeded {
		return domain.Order{}, fmt.Errorf("%w: charge not settled (%s)", ErrChargeDeclined, result.Status)
	}

	order, err := c.svc.finalizer.Finalize(ctx, FinalizeCommand{
		Working: c.working,
		Method:  domain.PaymentMethodSavedCard,
		Paid:    true,
		Amount:  amount,
		Metadata: map[string]string{
			"providerRef": result.ProviderRef,
		},
		IssueInvoice: c.state.ReceiptRequested,
	})
	if err != nil {
		return domain.Order{}, err
	}

	c.closeLocked(order)
	return order, nil
}

// OpenHostedPage opens a gateway session for the embedded payment page and
// returns its one-time token and URL. The session stays at confirm until the
// page reports success or cancellation.
func (c *CheckoutSession) OpenHostedPage(ctx context.Context) (payments.HandshakeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireConfirm(domain.PaymentMethodHostedPage); err != nil {
		return payments.HandshakeSession{}, err
	}
	if c.svc.gateway == nil {
		return payments.HandshakeSession{}, ErrChannelUnavailable
	}

	cart := c.working.Cart()
	req := payments.HandshakeRequest{
		Amount:         c.working.Subtotal(),
		Currency:       c.svc.currency,
		CustomerID:     cart.CustomerID,
		SuccessURL:     c.svc.successURL,
		CancelURL:      c.svc.cancelURL,
		IdempotencyKey: "hosted-" + cart.ID,
		Metadata:       map[string]string{"cartId": cart.ID},
	}
	for _, item := range cart.Items {
		req.Items = append(req.Items, payments.LineItem{
			Name:      item.Name,
			Quantity:  int64(item.Quantity),
			UnitPrice: item.UnitPrice,
			Currency:  c.svc.currency,
		})
	}
	for _, appt := range cart.Appointments {
		req.Items = append(req.Items, payments.LineItem{
			Name:      appt.Label,
			Quantity:  1,
			UnitPrice: appt.Price,
			Currency:  c.svc.currency,
		})
	}

	session, err := c.svc.gateway.Handshake(ctx, req)
	if err != nil {
		return payments.HandshakeSession{}, err
	}

	c.hostedToken = session.Token
	c.svc.log(ctx, "checkout.hosted_page.opened", map[string]any{
		"cartId": cart.ID,
		"token":  session.Token,
	})
	return session, nil
}

// CompleteHostedPage handles the page's success callback and settles the cart.
func (c *CheckoutSession) CompleteHostedPage(ctx context.Context, token string) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireConfirm(domain.PaymentMethodHostedPage); err != nil {
		return domain.Order{}, err
	}
	if c.hostedToken == "" || strings.TrimSpace(token) != c.hostedToken {
		return domain.Order{}, fmt.Errorf("%w: unknown hosted page token", ErrCheckoutInvalidInput)
	}

	order, err := c.svc.finalizer.Finalize(ctx, FinalizeCommand{
		Working: c.working,
		Method:  domain.PaymentMethodHostedPage,
		Paid:    true,
		Metadata: map[string]string{
			"hostedToken": c.hostedToken,
		},
		IssueInvoice: c.state.ReceiptRequested,
	})
	if err != nil {
		return domain.Order{}, err
	}

	c.hostedToken = ""
	c.closeLocked(order)
	return order, nil
}

// CancelHostedPage handles the page's error or cancel callback. The session
// stays at confirm so the cashier can retry or pick another method.
func (c *CheckoutSession) CancelHostedPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostedToken = ""
}

// PushToWallet asks the customer's payment app to approve the charge. The
// operator names who receives the prompt; nothing is sent to contacts left
// unselected. The session stays at confirm until the cashier confirms
// receipt by hand.
func (c *CheckoutSession) PushToWallet(ctx context.Context, sel RecipientSelection) ([]messaging.DeliveryReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireConfirm(domain.PaymentMethodWallet); err != nil {
		return nil, err
	}
	if c.svc.dispatcher == nil || c.svc.customers == nil {
		return nil, ErrChannelUnavailable
	}

	cart := c.working.Cart()
	recipients, err := resolveRecipients(ctx, c.svc.customers, cart.CustomerID, sel)
	if err != nil {
		return nil, err
	}

	reports, err := c.svc.dispatcher.Dispatch(ctx, messaging.Dispatch{
		Template:   messaging.TemplateWalletPush,
		CartID:     cart.ID,
		CustomerID: cart.CustomerID,
		Recipients: recipients,
		Fields: map[string]string{
			"amount": fmt.Sprintf("%d", c.working.Subtotal()),
		},
	})
	if err != nil {
		return reports, err
	}

	c.svc.log(ctx, "checkout.wallet.pushed", map[string]any{
		"cartId":     cart.ID,
		"recipients": len(recipients),
	})
	return reports, nil
}

// MarkWalletReceived records that the wallet charge arrived. Settlement then
// follows the same path as cash: the cashier states the amount and the order
// is cut paid.
func (c *CheckoutSession) MarkWalletReceived(ctx context.Context, amount int64) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireConfirm(domain.PaymentMethodWallet); err != nil {
		return domain.Order{}, err
	}
	if amount <= 0 {
		return domain.Order{}, ErrCheckoutInvalidInput
	}

	order, err := c.svc.finalizer.Finalize(ctx, FinalizeCommand{
		Working:      c.working,
		Method:       domain.PaymentMethodWallet,
		Paid:         true,
		Amount:       amount,
		IssueInvoice: c.state.ReceiptRequested,
	})
	if err != nil {
		return domain.Order{}, err
	}

	c.state.AmountReceived = amount
	c.closeLocked(order)
	return order, nil
}

// SendPaymentLink cuts a pending order, delivers the self-service payment URL
// to the operator-selected recipients, and starts watching the order for
// settlement. When the poll sees the order paid, the session's cached order
// flips so subsequent reads show the settled state. The poll is owned by the
// session; StopPolling cancels it.
func (c *CheckoutSession) SendPaymentLink(ctx context.Context, withInvoice bool, sel RecipientSelection) (string, []messaging.DeliveryReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireConfirm(domain.PaymentMethodPaymentLink); err != nil {
		return "", nil, err
	}
	if c.svc.links == nil {
		return "", nil, ErrChannelUnavailable
	}

	cart := c.working.Cart()
	amount := c.working.Subtotal()

	order, err := c.svc.finalizer.Finalize(ctx, FinalizeCommand{
		Working:      c.working,
		Method:       domain.PaymentMethodPaymentLink,
		Paid:         false,
		Amount:       amount,
		Metadata:     map[string]string{"invoiceRequested": fmt.Sprintf("%t", withInvoice)},
		IssueInvoice: false,
	})
	if err != nil {
		return "", nil, err
	}

	reports, err := c.svc.links.Send(ctx, cart, amount, withInvoice, sel)
	if err != nil {
		return "", reports, err
	}

	url := c.svc.links.BuildURL(cart.ID, withInvoice)
	log := c.svc.log
	c.poll = c.svc.links.StartPolling(context.WithoutCancel(ctx), order.ID, func(settled domain.Order) {
		c.mu.Lock()
		c.order = &settled
		c.mu.Unlock()
		log(context.Background(), "checkout.payment_link.settled", map[string]any{
			"orderId": settled.ID,
			"cartId":  settled.CartID,
		})
	})
	c.closeLocked(order)
	return url, reports, nil
}
