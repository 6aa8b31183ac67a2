package messaging

import "context"

// Template names the canned message a dispatch carries.
type Template string

const (
	// TemplateWalletPush asks the customer to approve a pending wallet charge.
	TemplateWalletPush Template = "wallet_push"
	// TemplatePaymentLink delivers a self-service payment page URL.
	TemplatePaymentLink Template = "payment_link"
)

// Recipient is a single delivery target resolved from the customer's contacts.
type Recipient struct {
	ContactID string
	Name      string
	Phone     string
}

// Dispatch describes one outbound notification fan-out.
type Dispatch struct {
	Template   Template
	CartID     string
	CustomerID string
	Recipients []Recipient
	// Fields carries template parameters such as the amount or link URL.
	Fields map[string]string
}

// DeliveryReport records the broker's acknowledgement per recipient.
type DeliveryReport struct {
	ContactID string
	MessageID string
	Err       error
}

// Dispatcher fans a notification out to the customer's contacts.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Dispatch) ([]DeliveryReport, error)
}
