package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/messaging"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/httpx"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

// CheckoutHandlers exposes the checkout workflow over HTTP for the register UI.
type CheckoutHandlers struct {
	checkout *services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout *services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/{cartID}", func(cart chi.Router) {
		cart.Post("/session", h.openSession)
		cart.Delete("/session", h.closeSession)
		cart.Get("/", h.getSession)

		cart.Post("/advance", h.advance)
		cart.Post("/category", h.selectCategory)
		cart.Post("/method", h.selectMethod)
		cart.Post("/back", h.back)
		cart.Post("/jump", h.jump)

		cart.Post("/items", h.addLine)
		cart.Patch("/items/{itemID}", h.updateItem)
		cart.Delete("/items/{itemID}", h.removeItem)
		cart.Patch("/appointments/{lineID}", h.updateAppointment)
		cart.Delete("/appointments/{lineID}", h.removeAppointment)
		cart.Post("/commit", h.commit)
		cart.Post("/discard", h.discard)

		cart.Post("/confirm/cash", h.confirmCash)
		cart.Post("/confirm/bank-transfer", h.confirmBankTransfer)
		cart.Post("/confirm/saved-card", h.confirmSavedCard)
		cart.Post("/hosted-page", h.openHostedPage)
		cart.Post("/hosted-page/complete", h.completeHostedPage)
		cart.Post("/hosted-page/cancel", h.cancelHostedPage)
		cart.Post("/wallet/push", h.pushWallet)
		cart.Post("/wallet/received", h.walletReceived)
		cart.Post("/payment-link", h.sendPaymentLink)
	})
}

type sessionResponse struct {
	CartID           string           `json:"cartId"`
	Stage            string           `json:"stage"`
	Category         string           `json:"category,omitempty"`
	Method           string           `json:"method,omitempty"`
	ReceiptRequested bool             `json:"receiptRequested"`
	AmountReceived   int64            `json:"amountReceived,omitempty"`
	ReadOnly         bool             `json:"readOnly"`
	Cart             cartPayload      `json:"cart"`
	Order            *orderPayload    `json:"order,omitempty"`
	Services         []servicePayload `json:"adHocServices,omitempty"`
}

type cartPayload struct {
	ID           string               `json:"id"`
	CustomerID   string               `json:"customerId"`
	Status       string               `json:"status"`
	Subtotal     int64                `json:"subtotal"`
	Items        []itemPayload        `json:"items"`
	Appointments []appointmentPayload `json:"appointments"`
}

type itemPayload struct {
	ID         string  `json:"id"`
	ProductRef *string `json:"productRef,omitempty"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  int64   `json:"unitPrice"`
	Total      int64   `json:"total"`
}

type appointmentPayload struct {
	ID    string `json:"id"`
	Kind  string `json:"kind,omitempty"`
	RefID string `json:"refId,omitempty"`
	Label string `json:"label"`
	Price int64  `json:"price"`
	AdHoc bool   `json:"adHoc"`
}

type servicePayload struct {
	ItemID string `json:"itemId"`
	Label  string `json:"label"`
	Price  int64  `json:"price"`
}

type orderPayload struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Subtotal int64  `json:"subtotal"`
	Total    int64  `json:"total"`
}

func (h *CheckoutHandlers) sessionFor(ctx context.Context, w http.ResponseWriter, r *http.Request) (*services.CheckoutSession, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	session, ok := h.checkout.Session(cartID)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "no open checkout session for cart", http.StatusNotFound))
		return nil, false
	}
	return session, true
}

func (h *CheckoutHandlers) renderSession(w http.ResponseWriter, status int, session *services.CheckoutSession, subtotal int64, adHoc []services.AdHocService) {
	state := session.State()
	cart := session.Cart()

	payload := sessionResponse{
		CartID:           session.CartID(),
		Stage:            state.Stage.String(),
		Category:         string(state.Category),
		Method:           string(state.Method),
		ReceiptRequested: state.ReceiptRequested,
		AmountReceived:   state.AmountReceived,
		ReadOnly:         session.ReadOnly(),
		Cart: cartPayload{
			ID:           cart.ID,
			CustomerID:   cart.CustomerID,
			Status:       string(cart.Status),
			Subtotal:     subtotal,
			Items:        make([]itemPayload, 0, len(cart.Items)),
			Appointments: make([]appointmentPayload, 0, len(cart.Appointments)),
		},
	}
	for _, item := range cart.Items {
		payload.Cart.Items = append(payload.Cart.Items, itemPayload{
			ID:         item.ID,
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total(),
		})
	}
	for _, appt := range cart.Appointments {
		row := appointmentPayload{
			ID:    appt.ID,
			Label: appt.Label,
			Price: appt.Price,
			AdHoc: appt.AdHoc(),
		}
		if appt.Ref != nil {
			row.Kind = string(appt.Ref.Kind)
			row.RefID = appt.Ref.ID
		}
		payload.Cart.Appointments = append(payload.Cart.Appointments, row)
	}
	for _, svc := range adHoc {
		payload.Services = append(payload.Services, servicePayload{ItemID: svc.ItemID, Label: svc.Label, Price: svc.Price})
	}
	if order, ok := session.Order(); ok {
		payload.Order = &orderPayload{
			ID:       order.ID,
			Status:   string(order.Status),
			Method:   string(order.Method),
			Subtotal: order.Subtotal,
			Total:    order.Total,
		}
	}

	writeJSONResponse(w, status, payload)
}

func (h *CheckoutHandlers) renderCurrent(w http.ResponseWriter, session *services.CheckoutSession) {
	h.renderSession(w, http.StatusOK, session, session.Subtotal(), session.AdHocServices())
}

func (h *CheckoutHandlers) openSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	session, err := h.checkout.Open(ctx, cartID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) closeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if !h.checkout.Close(ctx, cartID) {
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "no open checkout session for cart", http.StatusNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	if err := session.Advance(ctx); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type selectCategoryRequest struct {
	Category string `json:"category"`
}

func (h *CheckoutHandlers) selectCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req selectCategoryRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	if err := session.SelectCategory(domain.PaymentCategory(strings.TrimSpace(req.Category))); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type selectMethodRequest struct {
	Method           string `json:"method"`
	ReceiptRequested bool   `json:"receiptRequested"`
}

func (h *CheckoutHandlers) selectMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req selectMethodRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	if err := session.SelectMethod(domain.PaymentMethod(strings.TrimSpace(req.Method)), req.ReceiptRequested); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) back(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	if err := session.Back(); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type jumpRequest struct {
	Stage string `json:"stage"`
}

func (h *CheckoutHandlers) jump(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req jumpRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	target, ok := stageFromString(strings.TrimSpace(req.Stage))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown stage", http.StatusBadRequest))
		return
	}
	if err := session.JumpTo(target); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func stageFromString(value string) (services.Stage, bool) {
	switch value {
	case "review":
		return services.StageReview, true
	case "category":
		return services.StageCategory, true
	case "method":
		return services.StageMethod, true
	case "confirm":
		return services.StageConfirm, true
	default:
		return 0, false
	}
}

type addLineRequest struct {
	Type       string `json:"type"`
	ProductRef string `json:"productRef"`
	Name       string `json:"name"`
	Label      string `json:"label"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	Price      int64  `json:"price"`
}

func (h *CheckoutHandlers) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}

	err := session.Edit(func(wc *services.WorkingCart) error {
		switch strings.TrimSpace(req.Type) {
		case "product":
			_, err := wc.AddProduct(req.ProductRef, req.Name, req.UnitPrice, req.Quantity)
			return err
		case "temporary_product":
			_, err := wc.AddTemporaryProduct(req.Name, req.UnitPrice, req.Quantity)
			return err
		case "temporary_service":
			_, err := wc.AddTemporaryService(req.Label, req.Price)
			return err
		default:
			return services.ErrReconcilerInvalidInput
		}
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type updateItemRequest struct {
	Quantity  *int   `json:"quantity"`
	UnitPrice *int64 `json:"unitPrice"`
}

func (h *CheckoutHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))

	var req updateItemRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	if req.Quantity == nil && req.UnitPrice == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity or unitPrice is required", http.StatusBadRequest))
		return
	}

	err := session.Edit(func(wc *services.WorkingCart) error {
		if req.Quantity != nil {
			if err := wc.SetItemQuantity(itemID, *req.Quantity); err != nil {
				return err
			}
		}
		if req.UnitPrice != nil {
			return wc.SetItemPrice(itemID, *req.UnitPrice)
		}
		return nil
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))

	if err := session.Edit(func(wc *services.WorkingCart) error {
		return wc.RemoveItem(itemID)
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type updateAppointmentRequest struct {
	Price *int64 `json:"price"`
}

func (h *CheckoutHandlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	lineID := strings.TrimSpace(chi.URLParam(r, "lineID"))

	var req updateAppointmentRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	if req.Price == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price is required", http.StatusBadRequest))
		return
	}

	if err := session.Edit(func(wc *services.WorkingCart) error {
		return wc.SetAppointmentPrice(ctx, lineID, *req.Price)
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) removeAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	lineID := strings.TrimSpace(chi.URLParam(r, "lineID"))

	if err := session.Edit(func(wc *services.WorkingCart) error {
		return wc.RemoveAppointment(lineID)
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type commitRequest struct {
	Scope string `json:"scope"`
}

func (h *CheckoutHandlers) commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req commitRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	scope := services.Scope(strings.TrimSpace(req.Scope))
	if scope != services.ScopeProducts && scope != services.ScopeAppointments {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "scope must be products or appointments", http.StatusBadRequest))
		return
	}

	if err := session.Edit(func(wc *services.WorkingCart) error {
		return wc.Commit(ctx, scope)
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) discard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	if err := session.Edit(func(wc *services.WorkingCart) error {
		wc.Discard()
		return nil
	}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (h *CheckoutHandlers) confirmCash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	amount := req.Amount
	if amount == 0 {
		amount = session.Subtotal()
	}
	if _, err := session.ConfirmCash(ctx, amount); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) confirmBankTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	amount := req.Amount
	if amount == 0 {
		amount = session.Subtotal()
	}
	if _, err := session.ConfirmBankTransfer(ctx, amount); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) confirmSavedCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	if _, err := session.ChargeSavedCard(ctx, req.Amount); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type hostedPageResponse struct {
	Token     string `json:"token"`
	EmbedURL  string `json:"embedUrl"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) openHostedPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	page, err := session.OpenHostedPage(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	resp := hostedPageResponse{Token: page.Token, EmbedURL: page.EmbedURL}
	if !page.ExpiresAt.IsZero() {
		resp.ExpiresAt = page.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type hostedCompleteRequest struct {
	Token string `json:"token"`
}

func (h *CheckoutHandlers) completeHostedPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req hostedCompleteRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	if _, err := session.CompleteHostedPage(ctx, req.Token); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

func (h *CheckoutHandlers) cancelHostedPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}
	session.CancelHostedPage()
	h.renderCurrent(w, session)
}

type customContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type recipientsRequest struct {
	Primary        bool                   `json:"primary"`
	ContactIDs     []string               `json:"contactIds"`
	CustomContacts []customContactRequest `json:"customContacts"`
}

func (r recipientsRequest) selection() services.RecipientSelection {
	sel := services.RecipientSelection{
		Primary:    r.Primary,
		ContactIDs: r.ContactIDs,
	}
	for _, contact := range r.CustomContacts {
		sel.Custom = append(sel.Custom, services.CustomContact{
			Name:  contact.Name,
			Phone: contact.Phone,
		})
	}
	return sel
}

func (h *CheckoutHandlers) pushWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req recipientsRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	reports, err := session.PushToWallet(ctx, req.selection())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, deliveriesResponse{Deliveries: deliveryPayload(reports)})
}

func (h *CheckoutHandlers) walletReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	if _, err := session.MarkWalletReceived(ctx, req.Amount); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.renderCurrent(w, session)
}

type paymentLinkRequest struct {
	Invoice bool `json:"invoice"`
	recipientsRequest
}

type paymentLinkResponse struct {
	URL        string           `json:"url"`
	Deliveries []deliveryReport `json:"deliveries"`
}

type deliveryReport struct {
	ContactID string `json:"contactId"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *CheckoutHandlers) sendPaymentLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.sessionFor(ctx, w, r)
	if !ok {
		return
	}

	var req paymentLinkRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}

	url, reports, err := session.SendPaymentLink(ctx, req.Invoice, req.selection())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentLinkResponse{
		URL:        url,
		Deliveries: deliveryPayload(reports),
	})
}

type deliveriesResponse struct {
	Deliveries []deliveryReport `json:"deliveries"`
}

func deliveryPayload(reports []messaging.DeliveryReport) []deliveryReport {
	out := make([]deliveryReport, 0, len(reports))
	for _, report := range reports {
		row := deliveryReport{ContactID: report.ContactID, MessageID: report.MessageID}
		if report.Err != nil {
			row.Error = report.Err.Error()
		}
		out = append(out, row)
	}
	return out
}

func (h *CheckoutHandlers) decode(ctx context.Context, w http.ResponseWriter, r *http.Request, into any) bool {
	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		if errors.Is(err, errEmptyBody) {
			return true
		}
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, into); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CheckoutHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrReconcilerInvalidInput),
		errors.Is(err, services.ErrFinalizerInvalidInput),
		errors.Is(err, services.ErrLinkInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNoRecipientSelected):
		httpx.WriteError(ctx, w, httpx.NewError("no_recipient_selected", "select at least one recipient", http.StatusBadRequest))
	case errors.Is(err, services.ErrIncompleteCustomContact):
		httpx.WriteError(ctx, w, httpx.NewError("incomplete_custom_contact", "custom contacts need both name and phone", http.StatusBadRequest))
	case errors.Is(err, services.ErrReconcilerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutReadOnly):
		httpx.WriteError(ctx, w, httpx.NewError("cart_read_only", "cart was already settled", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutWrongStage):
		httpx.WriteError(ctx, w, httpx.NewError("wrong_stage", "operation not allowed at this stage", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutNotBillable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no billable line", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutClosed):
		httpx.WriteError(ctx, w, httpx.NewError("session_closed", "checkout already settled", http.StatusConflict))
	case errors.Is(err, services.ErrAlreadySettled):
		httpx.WriteError(ctx, w, httpx.NewError("already_settled", "cart already has a settled order", http.StatusConflict))
	case errors.Is(err, services.ErrReconcilerConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has changed; reopen and retry", http.StatusConflict))
	case errors.Is(err, services.ErrChargeDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("charge_declined", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrLinkDispatchFailed):
		httpx.WriteError(ctx, w, httpx.NewError("dispatch_failed", "payment link could not be delivered", http.StatusBadGateway))
	case errors.Is(err, services.ErrChannelUnavailable),
		errors.Is(err, services.ErrReconcilerUnavailable),
		errors.Is(err, services.ErrFinalizerUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
