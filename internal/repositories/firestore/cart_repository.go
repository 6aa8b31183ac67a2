package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	pfirestore "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/firestore"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

const (
	cartCollection             = "carts"
	cartItemsSubcollection     = "items"
	cartAppointmentsSubcollect = "appointments"
)

// CartRepository persists cart headers with item and appointment subcollections.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// UpsertCart persists the cart header document. When expectedUpdate is set the
// write is preconditioned on the stored update time so concurrent writers fail
// with a conflict instead of overwriting each other.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	cartID := strings.TrimSpace(cart.ID)
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	status := cart.Status
	if status == "" {
		status = domain.CartStatusActive
	}

	doc := cartDocument{
		CustomerID: strings.TrimSpace(cart.CustomerID),
		Status:     string(status),
		CreatedAt:  createdAt,
		UpdatedAt:  now,
	}

	var (
		result pfirestore.MutationResult
		err    error
	)
	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err = r.base.Set(ctx, cartID, doc)
	} else {
		updates := []firestore.Update{
			{Path: "customerId", Value: doc.CustomerID},
			{Path: "status", Value: doc.Status},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}
		result, err = r.base.Update(ctx, cartID, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	}
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cloneCart(cart)
	saved.ID = cartID
	saved.Status = status
	saved.CreatedAt = createdAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the header plus both line subcollections.
func (r *CartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:         doc.ID,
		CustomerID: strings.TrimSpace(doc.Data.CustomerID),
		Status:     domain.CartStatus(strings.TrimSpace(doc.Data.Status)),
		CreatedAt:  doc.Data.CreatedAt,
		UpdatedAt:  doc.UpdateTime,
	}
	if cart.Status == "" {
		cart.Status = domain.CartStatusActive
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cartRef := client.Collection(cartCollection).Doc(id)

	cart.Items, err = r.loadItems(ctx, cartRef, id)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Appointments, err = r.loadAppointments(ctx, cartRef, id)
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// FindActiveByCustomer returns the single active cart for the customer, if any.
func (r *CartRepository) FindActiveByCustomer(ctx context.Context, customerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", cid).
			Where("status", "==", string(domain.CartStatusActive)).
			Limit(1)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if len(docs) == 0 {
		return domain.Cart{}, pfirestore.NotFoundError("carts.findActive")
	}
	return r.GetCart(ctx, docs[0].ID)
}

// ReplaceItems deletes every persisted product line and reinserts the given set.
func (r *CartRepository) ReplaceItems(ctx context.Context, cartID string, items []domain.CartItem) error {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}
	docs := make(map[string]any, len(items))
	for _, item := range items {
		docs[item.ID] = cartItemDocument{
			ProductRef: derefString(item.ProductRef),
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		}
	}
	return r.replaceSubcollection(ctx, id, cartItemsSubcollection, docs)
}

// ReplaceAppointments deletes every persisted service line and reinserts the given set.
func (r *CartRepository) ReplaceAppointments(ctx context.Context, cartID string, appointments []domain.CartAppointment) error {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}
	docs := make(map[string]any, len(appointments))
	for _, appt := range appointments {
		doc := cartAppointmentDocument{
			Label: appt.Label,
			Price: appt.Price,
		}
		if appt.Ref != nil {
			doc.RefKind = string(appt.Ref.Kind)
			doc.RefID = appt.Ref.ID
		}
		docs[appt.ID] = doc
	}
	return r.replaceSubcollection(ctx, id, cartAppointmentsSubcollect, docs)
}

// MarkCompleted flips the cart status once its order has been cut.
func (r *CartRepository) MarkCompleted(ctx context.Context, cartID string, completedAt time.Time) error {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: string(domain.CartStatusCompleted)},
		{Path: "updatedAt", Value: completedAt.UTC()},
	})
	return err
}

func (r *CartRepository) replaceSubcollection(ctx context.Context, cartID, sub string, docs map[string]any) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	coll := client.Collection(cartCollection).Doc(cartID).Collection(sub)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range existing {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		for id, doc := range docs {
			if strings.TrimSpace(id) == "" {
				return errors.New("cart repository: line id is required")
			}
			if err := tx.Set(coll.Doc(id), doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("carts.replace."+sub, err)
	}
	return nil
}

func (r *CartRepository) loadItems(ctx context.Context, cartRef *firestore.DocumentRef, cartID string) ([]domain.CartItem, error) {
	iter := cartRef.Collection(cartItemsSubcollection).Documents(ctx)
	defer iter.Stop()

	items := []domain.CartItem{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("carts.items.list", err)
		}
		var doc cartItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("carts.items.decode", err)
		}
		items = append(items, domain.CartItem{
			ID:         snap.Ref.ID,
			CartID:     cartID,
			ProductRef: optionalString(doc.ProductRef),
			Name:       doc.Name,
			Quantity:   doc.Quantity,
			UnitPrice:  doc.UnitPrice,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *CartRepository) loadAppointments(ctx context.Context, cartRef *firestore.DocumentRef, cartID string) ([]domain.CartAppointment, error) {
	iter := cartRef.Collection(cartAppointmentsSubcollect).Documents(ctx)
	defer iter.Stop()

	appointments := []domain.CartAppointment{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("carts.appointments.list", err)
		}
		var doc cartAppointmentDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("carts.appointments.decode", err)
		}
		appt := domain.CartAppointment{
			ID:     snap.Ref.ID,
			CartID: cartID,
			Label:  doc.Label,
			Price:  doc.Price,
		}
		if strings.TrimSpace(doc.RefID) != "" {
			appt.Ref = &domain.AppointmentRef{
				Kind: domain.AppointmentKind(doc.RefKind),
				ID:   doc.RefID,
			}
		}
		appointments = append(appointments, appt)
	}
	sort.Slice(appointments, func(i, j int) bool { return appointments[i].ID < appointments[j].ID })
	return appointments, nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	if cart.Items != nil {
		dup.Items = make([]domain.CartItem, len(cart.Items))
		copy(dup.Items, cart.Items)
	}
	if cart.Appointments != nil {
		dup.Appointments = make([]domain.CartAppointment, len(cart.Appointments))
		copy(dup.Appointments, cart.Appointments)
	}
	return dup
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

type cartDocument struct {
	CustomerID string    `firestore:"customerId"`
	Status     string    `firestore:"status"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductRef string `firestore:"productRef,omitempty"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
}

type cartAppointmentDocument struct {
	RefKind string `firestore:"refKind,omitempty"`
	RefID   string `firestore:"refId,omitempty"`
	Label   string `firestore:"label,omitempty"`
	Price   int64  `firestore:"price"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
