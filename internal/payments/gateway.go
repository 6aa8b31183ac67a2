package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised charge states reported by the gateway.
type Status string

const (
	// StatusPending indicates the charge is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the charge as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway declined and no further action is possible.
	StatusFailed Status = "failed"
)

// ErrGatewayDeclined wraps a gateway refusal. The provider's message is kept
// verbatim so the cashier sees exactly what the processor said.
var ErrGatewayDeclined = errors.New("payments: gateway declined")

// LineItem describes a single cart line forwarded to the hosted payment page.
type LineItem struct {
	Name      string
	SKU       string
	Quantity  int64
	UnitPrice int64
	Currency  string
}

// HandshakeRequest carries the payload for opening a hosted payment page session.
type HandshakeRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []LineItem
}

// HandshakeSession is the one-time token handed back by the gateway. EmbedURL
// is what the terminal renders; Token identifies the session on callbacks.
type HandshakeSession struct {
	Token     string
	EmbedURL  string
	IntentID  string
	ExpiresAt time.Time
	Raw       map[string]any
}

// ChargeRequest describes a synchronous charge against a stored card token.
type ChargeRequest struct {
	CardToken      string
	Amount         int64
	Currency       string
	CustomerID     string
	Metadata       map[string]string
	IdempotencyKey string
}

// ChargeResult reports the outcome of a synchronous charge.
type ChargeResult struct {
	Status      Status
	ProviderRef string
	// Message carries the provider's own wording for declines, unmodified.
	Message string
	Raw     map[string]any
}

// Gateway is the payment processor contract the checkout channels run against.
type Gateway interface {
	// Handshake opens a hosted page session for the given amount and returns
	// a one-time token plus the embeddable URL.
	Handshake(ctx context.Context, req HandshakeRequest) (HandshakeSession, error)
	// Charge runs a synchronous charge against a stored card token.
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
