package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

// adHocServiceMarker prefixes the persisted name of an ad-hoc service line.
// Such lines live in the items subcollection like any product row, and the
// marker plus label must survive a store/load cycle byte for byte.
const adHocServiceMarker = "~svc~"

var (
	errReconcilerCartsRequired        = errors.New("reconciler: cart repository is required")
	errReconcilerAppointmentsRequired = errors.New("reconciler: appointment repository is required")
	errReconcilerClockRequired        = errors.New("reconciler: clock is required")
)

// ErrReconcilerInvalidInput indicates the caller supplied invalid input.
var ErrReconcilerInvalidInput = errors.New("reconciler: invalid input")

// ErrReconcilerNotFound indicates the requested cart or line does not exist.
var ErrReconcilerNotFound = errors.New("reconciler: not found")

// ErrReconcilerConflict indicates concurrent modification of the cart.
var ErrReconcilerConflict = errors.New("reconciler: conflict")

// ErrReconcilerUnavailable indicates the backing store cannot be reached.
var ErrReconcilerUnavailable = errors.New("reconciler: unavailable")

// ReconcilerDeps wires persistence for cart reconciliation.
type ReconcilerDeps struct {
	Carts        repositories.CartRepository
	Appointments repositories.AppointmentRepository
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(context.Context, string, map[string]any)
}

// Reconciler opens carts into a working copy that tracks edits against the
// stored original until they are committed or discarded.
type Reconciler struct {
	carts repositories.CartRepository
	appts repositories.AppointmentRepository
	now   func() time.Time
	newID func() string
	log   func(context.Context, string, map[string]any)
}

// NewReconciler constructs a Reconciler enforcing dependency validation.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Carts == nil {
		return nil, errReconcilerCartsRequired
	}
	if deps.Appointments == nil {
		return nil, errReconcilerAppointmentsRequired
	}
	if deps.Clock == nil {
		return nil, errReconcilerClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Reconciler{
		carts: deps.Carts,
		appts: deps.Appointments,
		now:   func() time.Time { return deps.Clock().UTC() },
		newID: idGen,
		log:   logger,
	}, nil
}

// Open loads the cart and returns a working copy for counter edits.
func (r *Reconciler) Open(ctx context.Context, cartID string) (*WorkingCart, error) {
	if r == nil || r.carts == nil {
		return nil, ErrReconcilerUnavailable
	}

	id := strings.TrimSpace(cartID)
	if id == "" {
		return nil, ErrReconcilerInvalidInput
	}

	cart, err := r.carts.GetCart(ctx, id)
	if err != nil {
		return nil, r.translateRepoError(err)
	}

	return &WorkingCart{
		svc:      r,
		original: cloneCartLines(cart),
		working:  cloneCartLines(cart),
	}, nil
}

// Create opens a brand-new cart for the customer and persists its header.
func (r *Reconciler) Create(ctx context.Context, customerID string) (*WorkingCart, error) {
	if r == nil || r.carts == nil {
		return nil, ErrReconcilerUnavailable
	}

	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return nil, ErrReconcilerInvalidInput
	}

	now := r.now()
	cart := domain.Cart{
		ID:         "crt_" + r.newID(),
		CustomerID: cid,
		Status:     domain.CartStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	saved, err := r.carts.UpsertCart(ctx, cart, nil)
	if err != nil {
		return nil, r.translateRepoError(err)
	}

	return &WorkingCart{
		svc:      r,
		original: cloneCartLines(saved),
		working:  cloneCartLines(saved),
	}, nil
}

func (r *Reconciler) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrReconcilerNotFound
		case repoErr.IsConflict():
			return ErrReconcilerConflict
		}
	}
	return ErrReconcilerUnavailable
}

// WorkingCart is a cart opened for edit. Mutations touch only the working
// copy; Commit writes a scope back as a full replace, Discard drops edits.
// It is not safe for concurrent use; the owning checkout session serialises
// access.
type WorkingCart struct {
	svc      *Reconciler
	original domain.Cart
	working  domain.Cart
}

// Cart returns a snapshot of the current working copy.
func (w *WorkingCart) Cart() domain.Cart {
	return cloneCartLines(w.working)
}

// IsDirty reports whether the scope's working lines differ from the stored
// original.
func (w *WorkingCart) IsDirty(scope Scope) bool {
	switch scope {
	case ScopeProducts:
		return !reflect.DeepEqual(w.working.Items, w.original.Items)
	case ScopeAppointments:
		return !reflect.DeepEqual(w.working.Appointments, w.original.Appointments)
	default:
		return false
	}
}

// Commit writes the scope back to the store as a full replace and refreshes
// the original copy. Rows still carrying a local tmp_ id get a durable id
// minted first, so the synthesised id never reaches the store. Committing a
// clean scope is a no-op.
func (w *WorkingCart) Commit(ctx context.Context, scope Scope) error {
	if !w.IsDirty(scope) {
		return nil
	}

	switch scope {
	case ScopeProducts:
		w.mintItemIDs()
		if err := w.svc.carts.ReplaceItems(ctx, w.working.ID, w.working.Items); err != nil {
			return w.svc.translateRepoError(err)
		}
		w.original.Items = cloneItems(w.working.Items)
	case ScopeAppointments:
		w.mintAppointmentIDs()
		if err := w.svc.carts.ReplaceAppointments(ctx, w.working.ID, w.working.Appointments); err != nil {
			return w.svc.translateRepoError(err)
		}
		w.original.Appointments = cloneAppointments(w.working.Appointments)
	default:
		return ErrReconcilerInvalidInput
	}

	w.svc.log(ctx, "reconciler.committed", map[string]any{
		"cartId": w.working.ID,
		"scope":  string(scope),
	})
	return nil
}

const localLinePrefix = "tmp_"

func (w *WorkingCart) mintItemIDs() {
	for i := range w.working.Items {
		if strings.HasPrefix(w.working.Items[i].ID, localLinePrefix) {
			w.working.Items[i].ID = "itm_" + w.svc.newID()
		}
	}
}

func (w *WorkingCart) mintAppointmentIDs() {
	for i := range w.working.Appointments {
		if strings.HasPrefix(w.working.Appointments[i].ID, localLinePrefix) {
			w.working.Appointments[i].ID = "apt_" + w.svc.newID()
		}
	}
}

// CommitAll commits whichever scopes are dirty.
func (w *WorkingCart) CommitAll(ctx context.Context) error {
	if err := w.Commit(ctx, ScopeProducts); err != nil {
		return err
	}
	return w.Commit(ctx, ScopeAppointments)
}

// Discard drops every uncommitted edit, restoring the stored original.
func (w *WorkingCart) Discard() {
	w.working = cloneCartLines(w.original)
}

// AddProduct appends a catalogued product line to the working copy.
func (w *WorkingCart) AddProduct(productRef, name string, unitPrice int64, quantity int) (domain.CartItem, error) {
	if strings.TrimSpace(name) == "" || quantity <= 0 || unitPrice < 0 {
		return domain.CartItem{}, ErrReconcilerInvalidInput
	}

	ref := strings.TrimSpace(productRef)
	item := domain.CartItem{
		ID:        localLinePrefix + w.svc.newID(),
		CartID:    w.working.ID,
		Name:      name,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
	if ref != "" {
		item.ProductRef = &ref
	}
	w.working.Items = append(w.working.Items, item)
	return item, nil
}

// AddTemporaryProduct appends an uncatalogued product improvised at the
// counter. The line gets a synthesised local id until it is committed.
func (w *WorkingCart) AddTemporaryProduct(name string, unitPrice int64, quantity int) (domain.CartItem, error) {
	return w.AddProduct("", name, unitPrice, quantity)
}

// AddTemporaryService appends an ad-hoc service improvised at the counter.
// It is persisted as an ordinary item row whose name carries the reserved
// service marker, so the label and price round-trip unchanged.
func (w *WorkingCart) AddTemporaryService(label string, price int64) (domain.CartItem, error) {
	if strings.TrimSpace(label) == "" || price < 0 {
		return domain.CartItem{}, ErrReconcilerInvalidInput
	}

	item := domain.CartItem{
		ID:        localLinePrefix + w.svc.newID(),
		CartID:    w.working.ID,
		Name:      adHocServiceMarker + label,
		Quantity:  1,
		UnitPrice: price,
	}
	w.working.Items = append(w.working.Items, item)
	return item, nil
}

// AttachAppointment pulls a schedule-book entry into the cart as a service line.
func (w *WorkingCart) AttachAppointment(appt domain.Appointment) (domain.CartAppointment, error) {
	if appt.Ref.ID == "" {
		return domain.CartAppointment{}, ErrReconcilerInvalidInput
	}
	for _, existing := range w.working.Appointments {
		if existing.Ref != nil && *existing.Ref == appt.Ref {
			return domain.CartAppointment{}, fmt.Errorf("%w: appointment already attached", ErrReconcilerInvalidInput)
		}
	}

	ref := appt.Ref
	line := domain.CartAppointment{
		ID:     localLinePrefix + w.svc.newID(),
		CartID: w.working.ID,
		Ref:    &ref,
		Label:  appt.ServiceName,
		Price:  appt.Price,
	}
	w.working.Appointments = append(w.working.Appointments, line)
	return line, nil
}

// SetItemQuantity updates a line's quantity. Zero removes the row entirely.
func (w *WorkingCart) SetItemQuantity(itemID string, quantity int) error {
	if quantity < 0 {
		return ErrReconcilerInvalidInput
	}
	for i := range w.working.Items {
		if w.working.Items[i].ID != itemID {
			continue
		}
		if quantity == 0 {
			w.working.Items = append(w.working.Items[:i], w.working.Items[i+1:]...)
		} else {
			w.working.Items[i].Quantity = quantity
		}
		return nil
	}
	return ErrReconcilerNotFound
}

// SetItemPrice updates a line's unit price.
func (w *WorkingCart) SetItemPrice(itemID string, unitPrice int64) error {
	if unitPrice < 0 {
		return ErrReconcilerInvalidInput
	}
	for i := range w.working.Items {
		if w.working.Items[i].ID == itemID {
			w.working.Items[i].UnitPrice = unitPrice
			return nil
		}
	}
	return ErrReconcilerNotFound
}

// RemoveItem drops a product line from the working copy.
func (w *WorkingCart) RemoveItem(itemID string) error {
	for i := range w.working.Items {
		if w.working.Items[i].ID == itemID {
			w.working.Items = append(w.working.Items[:i], w.working.Items[i+1:]...)
			return nil
		}
	}
	return ErrReconcilerNotFound
}

// SetAppointmentPrice updates a service line's price. When the cart carries
// exactly one booked appointment the schedule book is updated as well, so the
// groomer's calendar shows the negotiated price; with several appointments
// only the cart line changes.
func (w *WorkingCart) SetAppointmentPrice(ctx context.Context, lineID string, price int64) error {
	if price < 0 {
		return ErrReconcilerInvalidInput
	}

	idx := -1
	booked := 0
	for i := range w.working.Appointments {
		if w.working.Appointments[i].ID == lineID {
			idx = i
		}
		if w.working.Appointments[i].Ref != nil {
			booked++
		}
	}
	if idx == -1 {
		return ErrReconcilerNotFound
	}

	line := &w.working.Appointments[idx]
	line.Price = price

	if line.Ref != nil && booked == 1 {
		if err := w.svc.appts.UpdatePrice(ctx, *line.Ref, price, w.svc.now()); err != nil {
			return w.svc.translateRepoError(err)
		}
	}
	return nil
}

// RemoveAppointment drops a service line from the working copy.
func (w *WorkingCart) RemoveAppointment(lineID string) error {
	for i := range w.working.Appointments {
		if w.working.Appointments[i].ID == lineID {
			w.working.Appointments = append(w.working.Appointments[:i], w.working.Appointments[i+1:]...)
			return nil
		}
	}
	return ErrReconcilerNotFound
}

// Subtotal sums every working line: items extended by quantity, appointments
// at their line price.
func (w *WorkingCart) Subtotal() int64 {
	var total int64
	for _, item := range w.working.Items {
		total += item.Total()
	}
	for _, appt := range w.working.Appointments {
		total += appt.Price
	}
	return total
}

// AdHocService is the counter-facing view of a persisted ad-hoc service line.
type AdHocService struct {
	ItemID string
	Label  string
	Price  int64
}

// AdHocServices decodes the marker-prefixed item rows back into service lines.
func (w *WorkingCart) AdHocServices() []AdHocService {
	var services []AdHocService
	for _, item := range w.working.Items {
		if label, ok := strings.CutPrefix(item.Name, adHocServiceMarker); ok {
			services = append(services, AdHocService{
				ItemID: item.ID,
				Label:  label,
				Price:  item.UnitPrice,
			})
		}
	}
	return services
}

func cloneCartLines(cart domain.Cart) domain.Cart {
	out := cart
	out.Items = cloneItems(cart.Items)
	out.Appointments = cloneAppointments(cart.Appointments)
	return out
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return nil
	}
	out := make([]domain.CartItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.ProductRef != nil {
			ref := *item.ProductRef
			out[i].ProductRef = &ref
		}
	}
	return out
}

func cloneAppointments(appts []domain.CartAppointment) []domain.CartAppointment {
	if appts == nil {
		return nil
	}
	out := make([]domain.CartAppointment, len(appts))
	for i, appt := range appts {
		out[i] = appt
		if appt.Ref != nil {
			ref := *appt.Ref
			out[i].Ref = &ref
		}
	}
	return out
}
