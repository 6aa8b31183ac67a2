package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// PubSubDispatcher publishes notification requests to a Pub/Sub topic. A
// downstream worker owns the actual SMS/wallet delivery.
type PubSubDispatcher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubDispatcher constructs a Pub/Sub backed notification dispatcher.
func NewPubSubDispatcher(topic *pubsub.Topic) (*PubSubDispatcher, error) {
	if topic == nil {
		return nil, errors.New("pubsub dispatcher: topic is required")
	}
	return &PubSubDispatcher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type dispatchEnvelope struct {
	Template   string            `json:"template"`
	CartID     string            `json:"cartId"`
	CustomerID string            `json:"customerId"`
	ContactID  string            `json:"contactId"`
	Name       string            `json:"name,omitempty"`
	Phone      string            `json:"phone"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Dispatch publishes one message per recipient and reports each acknowledgement.
func (p *PubSubDispatcher) Dispatch(ctx context.Context, d Dispatch) ([]DeliveryReport, error) {
	if p == nil || p.topic == nil {
		return nil, errors.New("pubsub dispatcher: not initialised")
	}
	if len(d.Recipients) == 0 {
		return nil, errors.New("pubsub dispatcher: at least one recipient is required")
	}

	reports := make([]DeliveryReport, 0, len(d.Recipients))
	var failed int
	for _, recipient := range d.Recipients {
		report := DeliveryReport{ContactID: recipient.ContactID}

		data, err := p.marshal(dispatchEnvelope{
			Template:   string(d.Template),
			CartID:     d.CartID,
			CustomerID: d.CustomerID,
			ContactID:  recipient.ContactID,
			Name:       recipient.Name,
			Phone:      recipient.Phone,
			Fields:     d.Fields,
		})
		if err != nil {
			report.Err = fmt.Errorf("marshal dispatch: %w", err)
			reports = append(reports, report)
			failed++
			continue
		}

		attrs := make(map[string]string)
		setAttr(attrs, "template", string(d.Template))
		setAttr(attrs, "cartId", d.CartID)
		setAttr(attrs, "customerId", d.CustomerID)
		setAttr(attrs, "contactId", recipient.ContactID)

		result := p.topic.Publish(ctx, &pubsub.Message{
			Data:       data,
			Attributes: attrs,
		})

		id, err := result.Get(ctx)
		if err != nil {
			report.Err = fmt.Errorf("publish dispatch: %w", err)
			failed++
		} else {
			report.MessageID = id
		}
		reports = append(reports, report)
	}

	if failed == len(d.Recipients) {
		return reports, errors.New("pubsub dispatcher: all deliveries failed")
	}
	return reports, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
