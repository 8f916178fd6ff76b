package http

import (
	"encoding/json"
	"net/http"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminHandler serves the back-office routes.
type AdminHandler struct {
	orders  *service.OrderService
	returns *service.ReturnService
}

func NewAdminHandler(orders *service.OrderService, returns *service.ReturnService) *AdminHandler {
	return &AdminHandler{orders: orders, returns: returns}
}

// GET /api/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAllOrders(r.Context())
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

type updateStatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// PATCH /api/admin/orders/{order_id} updates the fulfillment status, the
// payment status (through the direct-edit table), or both.
func (h *AdminHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		(req.Status == "" && req.PaymentStatus == "") {
		respondError(w, http.StatusBadRequest, "invalid_request", "status or payment_status is required")
		return
	}

	var order *domain.Order
	var err error
	if req.Status != "" {
		order, err = h.orders.UpdateStatus(r.Context(), orderID, domain.OrderStatus(req.Status))
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}
	if req.PaymentStatus != "" {
		order, err = h.orders.ApplyPaymentEdit(r.Context(), orderID, domain.PaymentStatus(req.PaymentStatus))
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, orderToDTO(order))
}

// POST /api/admin/orders/{order_id}/cancel
func (h *AdminHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	order, err := h.orders.CancelOrder(r.Context(), orderID, "", domain.ActorAdmin)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order))
}

type receiveReturnRequest struct {
	AdminNotes string `json:"admin_notes"`
}

// POST /api/admin/orders/{order_id}/return-received
func (h *AdminHandler) ReceiveReturn(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	var req receiveReturnRequest
	// Body is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	order, err := h.returns.Receive(r.Context(), orderID, req.AdminNotes)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order))
}

// GET /api/admin/complaints
func (h *AdminHandler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	complaints, err := h.returns.ListComplaints(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	dtos := make([]complaintDTO, 0, len(complaints))
	for _, c := range complaints {
		dtos = append(dtos, complaintToDTO(c))
	}
	respondJSON(w, http.StatusOK, dtos)
}

type decideComplaintRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// POST /api/admin/complaints/{complaint_id}/decide
func (h *AdminHandler) DecideComplaint(w http.ResponseWriter, r *http.Request) {
	complaintID, err := uuid.Parse(chi.URLParam(r, "complaint_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed complaint id")
		return
	}

	var req decideComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	var c *domain.Complaint
	if req.Approve {
		c, err = h.returns.Approve(r.Context(), complaintID, req.Notes)
	} else {
		c, err = h.returns.Reject(r.Context(), complaintID, req.Notes)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, complaintToDTO(c))
}
