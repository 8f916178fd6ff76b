package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/events"
	"github.com/Shinra-Deskware/madzilla-backend/internal/gateway"
	"github.com/Shinra-Deskware/madzilla-backend/internal/repository"
	"go.uber.org/zap"
)

// SignatureHeader carries the gateway's HMAC digest of the raw body.
const SignatureHeader = "X-Razorpay-Signature"

const maxBodyBytes = 1 << 20

// event is the envelope the gateway posts. Only the fields the handler
// correlates on are decoded.
type event struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// Handler reconciles gateway webhook events against stored orders. Every
// event is idempotent: replays and out-of-order deliveries never produce
// duplicate ledger entries or notifications.
type Handler struct {
	repo     repository.OrderRepository
	notifier events.Notifier
	secret   string
	logger   *zap.Logger
	now      func() time.Time
}

func NewHandler(repo repository.OrderRepository, notifier events.Notifier, secret string, logger *zap.Logger) *Handler {
	return &Handler{
		repo:     repo,
		notifier: notifier,
		secret:   secret,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle verifies the signature over the exact raw bytes before anything
// else. An unresolvable correlation ref is acked with 200 so the gateway
// stops retrying an event this system can never apply.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if !gateway.VerifyWebhookSignature(body, r.Header.Get(SignatureHeader), h.secret) {
		h.logger.Warn("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if err := h.process(r.Context(), &ev); err != nil {
		h.logger.Error("webhook processing failed",
			zap.String("event", ev.Event), zap.Error(err))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) process(ctx context.Context, ev *event) error {
	switch ev.Event {
	case "payment.authorized", "payment.captured", "payment.failed":
		return h.processPayment(ctx, ev)
	case "refund.created", "refund.processed", "refund.failed":
		return h.processRefund(ctx, ev)
	default:
		h.logger.Info("ignoring unhandled webhook event", zap.String("event", ev.Event))
		return nil
	}
}

func (h *Handler) processPayment(ctx context.Context, ev *event) error {
	orderRef := ev.Payload.Payment.Entity.OrderID
	paymentRef := ev.Payload.Payment.Entity.ID

	return h.reconcile(ctx,
		func(ctx context.Context) (*domain.Order, error) {
			return h.repo.GetByGatewayOrderRef(ctx, orderRef)
		},
		func(order *domain.Order) (bool, string, error) {
			now := h.now()
			switch ev.Event {
			case "payment.authorized":
				return order.MarkAuthorized(now), "", nil
			case "payment.captured":
				changed, err := order.MarkPaid(paymentRef, "", now)
				if errors.Is(err, domain.ErrPaymentRefImmutable) {
					// A capture with a second payment id can never apply; flag
					// it for an operator and ack so the gateway stops
					// redelivering.
					h.logger.Error("capture conflicts with recorded payment ref",
						zap.String("order_id", order.OrderID),
						zap.String("payment_ref", paymentRef))
					return false, "", nil
				}
				return changed, events.EventPaymentCaptured, err
			default: // payment.failed
				return order.MarkPaymentFailed(paymentRef, now), events.EventPaymentFailed, nil
			}
		})
}

func (h *Handler) processRefund(ctx context.Context, ev *event) error {
	refundRef := ev.Payload.Refund.Entity.ID
	paymentRef := ev.Payload.Refund.Entity.PaymentID

	return h.reconcile(ctx,
		func(ctx context.Context) (*domain.Order, error) {
			order, err := h.repo.GetByGatewayPaymentRef(ctx, paymentRef)
			if errors.Is(err, repository.ErrOrderNotFound) {
				return h.repo.GetByRefundRef(ctx, refundRef)
			}
			return order, err
		},
		func(order *domain.Order) (bool, string, error) {
			now := h.now()
			switch ev.Event {
			case "refund.created":
				return order.MarkRefundInitiated(refundRef, now), "", nil
			case "refund.processed":
				changed, err := order.MarkRefundProcessed(refundRef, now)
				if errors.Is(err, domain.ErrMissingRefundContext) {
					// Data integrity fault: the money moved but the order's
					// terminal status cannot be resolved. Flag for an operator
					// and ack the event.
					h.logger.Error("refund processed without recorded context",
						zap.String("order_id", order.OrderID),
						zap.String("refund_ref", refundRef))
					return changed, events.EventRefundCompleted, nil
				}
				return changed, events.EventRefundCompleted, err
			default: // refund.failed
				return order.MarkRefundFailed(refundRef, now), events.EventRefundFailed, nil
			}
		})
}

// reconcile runs lookup, mutate, persist with a single re-read retry on an
// optimistic-lock conflict. An unresolved lookup is a deliberate no-op.
func (h *Handler) reconcile(ctx context.Context, lookup func(context.Context) (*domain.Order, error), mutate func(*domain.Order) (bool, string, error)) error {
	for attempt := 0; attempt < 2; attempt++ {
		order, err := lookup(ctx)
		if errors.Is(err, repository.ErrOrderNotFound) {
			h.logger.Info("webhook event does not match any order, skipping")
			return nil
		}
		if err != nil {
			return err
		}

		changed, eventType, err := mutate(order)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		err = h.repo.Update(ctx, order)
		if errors.Is(err, repository.ErrOptimisticLock) && attempt == 0 {
			continue
		}
		if err != nil {
			return err
		}

		if eventType != "" {
			h.notify(ctx, eventType, order)
		}
		return nil
	}
	return repository.ErrOptimisticLock
}

func (h *Handler) notify(ctx context.Context, eventType string, order *domain.Order) {
	identifier := order.EmailID
	if identifier == "" {
		identifier = order.PhoneNumber
	}
	err := h.notifier.Notify(ctx, eventType, events.Notification{
		OrderID:    order.OrderID,
		Identifier: identifier,
		Status:     string(order.Status),
		OccurredAt: h.now(),
	})
	if err != nil {
		h.logger.Warn("notification dispatch failed",
			zap.String("event_type", eventType),
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
}
