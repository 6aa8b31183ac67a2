package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/messaging"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

// ErrNoRecipientSelected indicates the operator confirmed a send with an
// empty recipient set.
var ErrNoRecipientSelected = errors.New("checkout service: no recipient selected")

// ErrIncompleteCustomContact indicates a custom recipient row is missing its
// name or phone.
var ErrIncompleteCustomContact = errors.New("checkout service: incomplete custom-contact entry")

// CustomContact is a free-form recipient typed at the counter instead of
// picked from the customer's file. Both fields are required.
type CustomContact struct {
	Name  string
	Phone string
}

// RecipientSelection names who receives an outbound notification. The
// operator may combine the customer's primary contact, contacts picked from
// the file, and custom entries; at least one recipient must resolve.
type RecipientSelection struct {
	Primary    bool
	ContactIDs []string
	Custom     []CustomContact
}

// resolveRecipients expands a selection into concrete delivery targets,
// validating every row. Duplicate contact ids collapse to one recipient.
func resolveRecipients(ctx context.Context, customers repositories.CustomerRepository, customerID string, sel RecipientSelection) ([]messaging.Recipient, error) {
	var recipients []messaging.Recipient
	seen := map[string]bool{}

	if sel.Primary {
		contact, err := customers.GetPrimaryContact(ctx, customerID)
		if err != nil {
			if isRepoNotFound(err) {
				return nil, fmt.Errorf("%w: customer has no primary contact", ErrCheckoutInvalidInput)
			}
			return nil, ErrChannelUnavailable
		}
		seen[contact.ID] = true
		recipients = append(recipients, messaging.Recipient{
			ContactID: contact.ID,
			Name:      contact.Name,
			Phone:     contact.Phone,
		})
	}

	if len(sel.ContactIDs) > 0 {
		contacts, err := customers.ListContacts(ctx, customerID)
		if err != nil {
			return nil, ErrChannelUnavailable
		}
		byID := make(map[string]int, len(contacts))
		for i, contact := range contacts {
			byID[contact.ID] = i
		}
		for _, id := range sel.ContactIDs {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			idx, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: unknown contact %q", ErrCheckoutInvalidInput, id)
			}
			seen[id] = true
			recipients = append(recipients, messaging.Recipient{
				ContactID: contacts[idx].ID,
				Name:      contacts[idx].Name,
				Phone:     contacts[idx].Phone,
			})
		}
	}

	for _, custom := range sel.Custom {
		name := strings.TrimSpace(custom.Name)
		phone := strings.TrimSpace(custom.Phone)
		if name == "" || phone == "" {
			return nil, ErrIncompleteCustomContact
		}
		recipients = append(recipients, messaging.Recipient{
			Name:  name,
			Phone: phone,
		})
	}

	if len(recipients) == 0 {
		return nil, ErrNoRecipientSelected
	}
	return recipients, nil
}
