package http

import (
	"encoding/json"
	"net/http"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/service"
)

// PaymentHandler covers the gateway-facing client flow: open a payment
// intent, then confirm the capture callback.
type PaymentHandler struct {
	orders *service.OrderService
}

func NewPaymentHandler(orders *service.OrderService) *PaymentHandler {
	return &PaymentHandler{orders: orders}
}

type checkoutItemDTO struct {
	ProductRef string  `json:"product_ref"`
	Title      string  `json:"title"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
}

type createCheckoutRequest struct {
	Items   []checkoutItemDTO `json:"items"`
	Address domain.Address    `json:"address"`
	Total   float64           `json:"total"`
}

type createCheckoutResponse struct {
	OrderID         string  `json:"order_id"`
	GatewayOrderRef string  `json:"gateway_order_ref"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

// POST /api/payment/order
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{
			ProductRef: it.ProductRef,
			Title:      it.Title,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
		})
	}

	checkoutReq := service.CheckoutRequest{
		Items:        items,
		Address:      req.Address,
		ClaimedTotal: req.Total,
	}
	// The session identity doubles as the order owner.
	if isEmail(identity) {
		checkoutReq.EmailID = identity
	} else {
		checkoutReq.PhoneNumber = identity
	}

	order, err := h.orders.CreateCheckout(r.Context(), checkoutReq)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, createCheckoutResponse{
		OrderID:         order.OrderID,
		GatewayOrderRef: order.GatewayOrderRef,
		Amount:          order.Total + order.Shipping,
		Currency:        "INR",
	})
}

type confirmPaymentRequest struct {
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_ref"`
	Signature  string `json:"signature"`
}

// POST /api/payment/verify
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.OrderID == "" || req.PaymentRef == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "order_id and payment_ref are required")
		return
	}

	order, err := h.orders.ConfirmPayment(r.Context(), req.OrderID, req.PaymentRef, req.Signature)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orderToDTO(order))
}

func isEmail(identifier string) bool {
	for _, c := range identifier {
		if c == '@' {
			return true
		}
	}
	return false
}
