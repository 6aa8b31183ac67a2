package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/platform/httpx"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/services"
)

// OrderHandlers exposes read-only settlement endpoints.
type OrderHandlers struct {
	query *services.OrderQueryService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(query *services.OrderQueryService) *OrderHandlers {
	return &OrderHandlers{query: query}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listByCart)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/payments", h.listPayments)
	r.Get("/{orderID}/invoices", h.listInvoices)
}

type orderResponse struct {
	ID           string              `json:"id"`
	CartID       string              `json:"cartId"`
	CustomerID   string              `json:"customerId"`
	Status       string              `json:"status"`
	Method       string              `json:"method"`
	Subtotal     int64               `json:"subtotal"`
	Total        int64               `json:"total"`
	Items        []orderLineResponse `json:"items,omitempty"`
	Appointments []orderLineResponse `json:"appointments,omitempty"`
	CreatedAt    string              `json:"createdAt,omitempty"`
}

type orderLineResponse struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Total     int64  `json:"total"`
}

func orderToResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:         order.ID,
		CartID:     order.CartID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Method:     string(order.Method),
		Subtotal:   order.Subtotal,
		Total:      order.Total,
	}
	if !order.CreatedAt.IsZero() {
		resp.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, line := range order.Items {
		resp.Items = append(resp.Items, orderLineResponse{Name: line.Name, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Total: line.Total})
	}
	for _, line := range order.Appointments {
		resp.Appointments = append(resp.Appointments, orderLineResponse{Name: line.Name, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Total: line.Total})
	}
	return resp
}

func (h *OrderHandlers) listByCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.query == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	cartID := strings.TrimSpace(r.URL.Query().Get("cartId"))
	if cartID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cartId query parameter is required", http.StatusBadRequest))
		return
	}

	orders, err := h.query.ListByCart(ctx, cartID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	payload := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, orderToResponse(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": payload})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.query == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.query.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderToResponse(order))
}

type paymentResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (h *OrderHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.query == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	records, err := h.query.Payments(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	payload := make([]paymentResponse, 0, len(records))
	for _, record := range records {
		row := paymentResponse{
			ID:     record.ID,
			Amount: record.Amount,
			Method: string(record.Method),
			Status: string(record.Status),
		}
		if !record.CreatedAt.IsZero() {
			row.CreatedAt = record.CreatedAt.UTC().Format(time.RFC3339)
		}
		payload = append(payload, row)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"payments": payload})
}

type invoiceResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	InvoiceNumber string `json:"invoiceNumber"`
	RetrievalKey  string `json:"retrievalKey"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

func (h *OrderHandlers) listInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.query == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	invoices, err := h.query.Invoices(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	payload := make([]invoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		row := invoiceResponse{
			ID:            invoice.ID,
			Type:          string(invoice.Type),
			Amount:        invoice.Amount,
			InvoiceNumber: invoice.InvoiceNumber,
			RetrievalKey:  invoice.RetrievalKey,
		}
		if !invoice.CreatedAt.IsZero() {
			row.CreatedAt = invoice.CreatedAt.UTC().Format(time.RFC3339)
		}
		payload = append(payload, row)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"invoices": payload})
}

func (h *OrderHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderQueryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderQueryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	}
}
