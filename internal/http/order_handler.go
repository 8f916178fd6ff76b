package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderHandler serves the customer-facing order routes.
type OrderHandler struct {
	orders  *service.OrderService
	returns *service.ReturnService
}

func NewOrderHandler(orders *service.OrderService, returns *service.ReturnService) *OrderHandler {
	return &OrderHandler{orders: orders, returns: returns}
}

type historyEntryDTO struct {
	Step  int       `json:"step"`
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

type orderDTO struct {
	OrderID       string            `json:"order_id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	CurrentStep   int               `json:"current_step"`
	Items         []checkoutItemDTO `json:"items"`
	Total         float64           `json:"total"`
	Shipping      float64           `json:"shipping"`
	History       []historyEntryDTO `json:"history"`
	CreatedAt     time.Time         `json:"created_at"`
}

func orderToDTO(o *domain.Order) orderDTO {
	items := make([]checkoutItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, checkoutItemDTO{
			ProductRef: it.ProductRef,
			Title:      it.Title,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
		})
	}
	history := make([]historyEntryDTO, 0, len(o.StatusHistory))
	for _, e := range o.StatusHistory {
		history = append(history, historyEntryDTO{Step: e.Step, Label: e.Label, At: e.At})
	}
	return orderDTO{
		OrderID:       o.OrderID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CurrentStep:   o.CurrentStep,
		Items:         items,
		Total:         o.Total,
		Shipping:      o.Shipping,
		History:       history,
		CreatedAt:     o.CreatedAt,
	}
}

// GET /api/user/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	orders, err := h.orders.ListOrders(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, orderToDTO(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/user/orders/{order_id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	orderID := chi.URLParam(r, "order_id")

	order, err := h.orders.GetOrder(r.Context(), orderID, identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order))
}

// POST /api/user/orders/{order_id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	orderID := chi.URLParam(r, "order_id")

	order, err := h.orders.CancelOrder(r.Context(), orderID, identity, domain.ActorUser)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order))
}

type complaintRequestDTO struct {
	OrderID string   `json:"order_id"`
	Type    string   `json:"type"` // COMPLAINT or RETURN
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Images  []string `json:"images"`
}

type complaintDTO struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	AdminNotes string    `json:"admin_notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func complaintToDTO(c *domain.Complaint) complaintDTO {
	return complaintDTO{
		ID:         c.ID.String(),
		OrderID:    c.OrderID,
		Type:       string(c.Type),
		Status:     string(c.Status),
		Title:      c.Title,
		Message:    c.Message,
		AdminNotes: c.AdminNotes,
		CreatedAt:  c.CreatedAt,
	}
}

// POST /api/user/complaints
func (h *OrderHandler) FileComplaint(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req complaintRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "order_id is required")
		return
	}

	complaintType := domain.ComplaintType(req.Type)
	if complaintType != domain.ComplaintTypeComplaint && complaintType != domain.ComplaintTypeReturn {
		respondError(w, http.StatusBadRequest, "invalid_request", "type must be COMPLAINT or RETURN")
		return
	}

	c, err := h.returns.File(r.Context(), service.ComplaintRequest{
		OrderID:    req.OrderID,
		Identifier: identity,
		Type:       complaintType,
		Title:      req.Title,
		Message:    req.Message,
		Images:     req.Images,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, complaintToDTO(c))
}
