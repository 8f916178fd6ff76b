package http

import (
	"net/http"

	"github.com/Shinra-Deskware/madzilla-backend/internal/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig bundles the handlers and secrets the router wires together.
type RouterConfig struct {
	Auth      *AuthHandler
	Payments  *PaymentHandler
	Orders    *OrderHandler
	Admin     *AdminHandler
	Webhook   *webhook.Handler
	JWTSecret string
	AdminKey  string
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/otp", func(r chi.Router) {
			r.Post("/send", cfg.Auth.Send)
			r.Post("/verify", cfg.Auth.Verify)
		})

		// The webhook authenticates by HMAC over the raw body, not a session.
		r.Post("/webhook/gateway", cfg.Webhook.Handle)

		// The payment capture callback arrives before a session may exist on
		// some clients; it authenticates by the gateway signature itself.
		r.Post("/payment/verify", cfg.Payments.ConfirmPayment)

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(cfg.JWTSecret))

			r.Post("/payment/order", cfg.Payments.CreateOrder)

			r.Route("/user", func(r chi.Router) {
				r.Get("/orders", cfg.Orders.List)
				r.Get("/orders/{order_id}", cfg.Orders.Get)
				r.Post("/orders/{order_id}/cancel", cfg.Orders.Cancel)
				r.Post("/complaints", cfg.Orders.FileComplaint)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminMiddleware(cfg.AdminKey))

			r.Get("/orders", cfg.Admin.ListOrders)
			r.Patch("/orders/{order_id}", cfg.Admin.UpdateOrder)
			r.Post("/orders/{order_id}/cancel", cfg.Admin.CancelOrder)
			r.Post("/orders/{order_id}/return-received", cfg.Admin.ReceiveReturn)
			r.Get("/complaints", cfg.Admin.ListComplaints)
			r.Post("/complaints/{complaint_id}/decide", cfg.Admin.DecideComplaint)
		})
	})

	return r
}
