package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"

	domain "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	pfirestore "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/firestore"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

const (
	customerCollection     = "customers"
	contactsSubcollection  = "contacts"
	cardTokenSubcollection = "cards"
)

// CustomerRepository reads contact and stored-card data kept under customer documents.
type CustomerRepository struct {
	provider *pfirestore.Provider
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{provider: provider}, nil
}

// ListContacts returns the contact book for the customer, primary first.
func (r *CustomerRepository) ListContacts(ctx context.Context, customerID string) ([]domain.CustomerContact, error) {
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return nil, errors.New("customer repository: customer id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := client.Collection(customerCollection).Doc(cid).
		Collection(contactsSubcollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("customers.contacts.list", err)
	}

	contacts := make([]domain.CustomerContact, 0, len(snaps))
	primaries := map[string]bool{}
	for _, snap := range snaps {
		var doc contactDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("customers.contacts.decode", err)
		}
		contacts = append(contacts, domain.CustomerContact{
			ID:    snap.Ref.ID,
			Name:  strings.TrimSpace(doc.Name),
			Phone: strings.TrimSpace(doc.Phone),
		})
		primaries[snap.Ref.ID] = doc.Primary
	}
	sort.Slice(contacts, func(i, j int) bool {
		if primaries[contacts[i].ID] != primaries[contacts[j].ID] {
			return primaries[contacts[i].ID]
		}
		return contacts[i].ID < contacts[j].ID
	})
	return contacts, nil
}

// GetPrimaryContact returns the contact flagged primary, or the first contact when none is.
func (r *CustomerRepository) GetPrimaryContact(ctx context.Context, customerID string) (domain.CustomerContact, error) {
	contacts, err := r.ListContacts(ctx, customerID)
	if err != nil {
		return domain.CustomerContact{}, err
	}
	if len(contacts) == 0 {
		return domain.CustomerContact{}, pfirestore.NotFoundError("customers.contacts.primary")
	}
	return contacts[0], nil
}

// GetStoredCard returns the tokenised card on file, if any.
func (r *CustomerRepository) GetStoredCard(ctx context.Context, customerID string) (domain.StoredCard, error) {
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return domain.StoredCard{}, errors.New("customer repository: customer id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.StoredCard{}, err
	}
	snaps, err := client.Collection(customerCollection).Doc(cid).
		Collection(cardTokenSubcollection).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return domain.StoredCard{}, pfirestore.WrapError("customers.cards.get", err)
	}
	if len(snaps) == 0 {
		return domain.StoredCard{}, pfirestore.NotFoundError("customers.cards.get")
	}

	var doc storedCardDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.StoredCard{}, pfirestore.WrapError("customers.cards.decode", err)
	}
	if strings.TrimSpace(doc.Token) == "" {
		return domain.StoredCard{}, pfirestore.NotFoundError("customers.cards.get")
	}
	return domain.StoredCard{
		Token: strings.TrimSpace(doc.Token),
		Brand: strings.TrimSpace(doc.Brand),
		Last4: strings.TrimSpace(doc.Last4),
	}, nil
}

type contactDocument struct {
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone"`
	Primary bool   `firestore:"primary"`
}

type storedCardDocument struct {
	Token string `firestore:"token"`
	Brand string `firestore:"brand,omitempty"`
	Last4 string `firestore:"last4,omitempty"`
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)
