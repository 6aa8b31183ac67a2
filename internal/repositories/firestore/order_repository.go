package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	pfirestore "github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/firestore"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

const (
	orderCollection       = "orders"
	orderItemsSubcoll     = "items"
	orderAppointmentsColl = "appointments"
)

// OrderRepository persists settlement records with immutable line snapshots.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert writes the order header and both line subcollections in one transaction.
// The header is created, not upserted, so a duplicate order id fails as a
// conflict, and the transaction re-checks that the cart has no settled order
// yet so two concurrent settlements cannot both commit.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	orderRef := client.Collection(orderCollection).Doc(orderID)

	doc := orderDocument{
		CartID:     strings.TrimSpace(order.CartID),
		CustomerID: strings.TrimSpace(order.CustomerID),
		Status:     string(order.Status),
		Method:     string(order.Method),
		Subtotal:   order.Subtotal,
		Total:      order.Total,
		CreatedAt:  order.CreatedAt.UTC(),
		UpdatedAt:  order.UpdatedAt.UTC(),
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if doc.CartID != "" {
			settled := client.Collection(orderCollection).
				Where("cartId", "==", doc.CartID).
				Where("status", "==", string(domain.OrderStatusPaid)).
				Limit(1)
			existing, err := tx.Documents(settled).GetAll()
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return pfirestore.ConflictError("orders.insert", "cart already has a settled order")
			}
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		for i, line := range order.Items {
			ref := orderRef.Collection(orderItemsSubcoll).Doc(fmt.Sprintf("%04d", i))
			if err := tx.Set(ref, encodeOrderLine(line, i)); err != nil {
				return err
			}
		}
		for i, line := range order.Appointments {
			ref := orderRef.Collection(orderAppointmentsColl).Doc(fmt.Sprintf("%04d", i))
			if err := tx.Set(ref, encodeOrderLine(line, i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads the order header plus line snapshots.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	order := decodeOrderDocument(doc.ID, doc.Data)
	order.UpdatedAt = doc.UpdateTime

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	orderRef := client.Collection(orderCollection).Doc(id)

	order.Items, err = r.loadLines(ctx, orderRef, orderItemsSubcoll)
	if err != nil {
		return domain.Order{}, err
	}
	order.Appointments, err = r.loadLines(ctx, orderRef, orderAppointmentsColl)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// FindByCart returns every order cut from the given cart, newest first.
// Line snapshots are not loaded; callers needing them use FindByID.
func (r *OrderRepository) FindByCart(ctx context.Context, cartID string) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return nil, errors.New("order repository: cart id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("cartId", "==", id)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := decodeOrderDocument(doc.ID, doc.Data)
		order.UpdatedAt = doc.UpdateTime
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// UpdateStatus moves the order to the given settlement state.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

func (r *OrderRepository) loadLines(ctx context.Context, orderRef *firestore.DocumentRef, sub string) ([]domain.OrderLine, error) {
	snaps, err := orderRef.Collection(sub).OrderBy("position", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("orders."+sub+".list", err)
	}
	lines := make([]domain.OrderLine, 0, len(snaps))
	for _, snap := range snaps {
		var doc orderLineDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("orders."+sub+".decode", err)
		}
		line := domain.OrderLine{
			Name:      doc.Name,
			Quantity:  doc.Quantity,
			UnitPrice: doc.UnitPrice,
			Total:     doc.Total,
		}
		if strings.TrimSpace(doc.ProductRef) != "" {
			ref := strings.TrimSpace(doc.ProductRef)
			line.ProductRef = &ref
		}
		if strings.TrimSpace(doc.AppointmentID) != "" {
			line.AppointmentRef = &domain.AppointmentRef{
				Kind: domain.AppointmentKind(doc.AppointmentKind),
				ID:   doc.AppointmentID,
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func encodeOrderLine(line domain.OrderLine, position int) orderLineDocument {
	doc := orderLineDocument{
		Position:   position,
		Name:       line.Name,
		ProductRef: derefString(line.ProductRef),
		Quantity:   line.Quantity,
		UnitPrice:  line.UnitPrice,
		Total:      line.Total,
	}
	if line.AppointmentRef != nil {
		doc.AppointmentKind = string(line.AppointmentRef.Kind)
		doc.AppointmentID = line.AppointmentRef.ID
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:         id,
		CartID:     doc.CartID,
		CustomerID: doc.CustomerID,
		Status:     domain.OrderStatus(doc.Status),
		Method:     domain.PaymentMethod(doc.Method),
		Subtotal:   doc.Subtotal,
		Total:      doc.Total,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

type orderDocument struct {
	CartID     string    `firestore:"cartId"`
	CustomerID string    `firestore:"customerId"`
	Status     string    `firestore:"status"`
	Method     string    `firestore:"method,omitempty"`
	Subtotal   int64     `firestore:"subtotal"`
	Total      int64     `firestore:"total"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type orderLineDocument struct {
	Position        int    `firestore:"position"`
	Name            string `firestore:"name"`
	ProductRef      string `firestore:"productRef,omitempty"`
	AppointmentKind string `firestore:"appointmentKind,omitempty"`
	AppointmentID   string `firestore:"appointmentId,omitempty"`
	Quantity        int    `firestore:"quantity"`
	UnitPrice       int64  `firestore:"unitPrice"`
	Total           int64  `firestore:"total"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
