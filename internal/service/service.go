package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/checkout"
	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/events"
	"github.com/Shinra-Deskware/madzilla-backend/internal/gateway"
	"github.com/Shinra-Deskware/madzilla-backend/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrIdentityRequired  = errors.New("email or phone number required")
	ErrNotOwner          = errors.New("order does not belong to this identity")
	ErrSignatureMismatch = errors.New("payment signature verification failed")
)

type OrderService struct {
	repo      repository.OrderRepository
	verifier  *checkout.Verifier
	gateway   gateway.Client
	notifier  events.Notifier
	keySecret string
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrderService(repo repository.OrderRepository, verifier *checkout.Verifier, gw gateway.Client, notifier events.Notifier, keySecret string, logger *zap.Logger) *OrderService {
	return &OrderService{
		repo:      repo,
		verifier:  verifier,
		gateway:   gw,
		notifier:  notifier,
		keySecret: keySecret,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckoutRequest is a client's attempt to start a payment. Claimed prices
// are informational only.
type CheckoutRequest struct {
	EmailID      string
	PhoneNumber  string
	Items        []domain.OrderItem
	Address      domain.Address
	ClaimedTotal float64
}

func (r CheckoutRequest) identifier() string {
	if r.EmailID != "" {
		return r.EmailID
	}
	return r.PhoneNumber
}

// CreateCheckout verifies the cart, creates (or reuses) a pending order and
// registers a payment intent with the gateway. An identical retried cart maps
// back onto its existing pending order instead of opening a second intent.
func (s *OrderService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	if req.EmailID == "" && req.PhoneNumber == "" {
		return nil, ErrIdentityRequired
	}

	verified, err := s.verifier.Verify(ctx, req.Items, req.ClaimedTotal)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindPendingByCartSignature(ctx, req.identifier(), verified.Signature); err == nil {
		s.logger.Info("reusing pending order for retried checkout",
			zap.String("order_id", existing.OrderID))
		return existing, nil
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, err
	}

	now := s.now()
	orderID := newOrderID()
	order := domain.NewOrder(orderID, req.EmailID, req.PhoneNumber,
		verified.Items, req.Address, verified.Total, verified.Shipping,
		verified.Signature, now)

	gatewayRef, err := s.gateway.CreateOrder(ctx, minorUnits(order.Total+order.Shipping), "INR", orderID)
	if err != nil {
		return nil, fmt.Errorf("gateway order creation failed: %w", err)
	}
	order.GatewayOrderRef = gatewayRef
	order.GatewayReceipt = orderID

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmPayment handles the client-side callback after the gateway widget
// completes. An already captured order succeeds idempotently no matter what
// ref or signature the caller presents, so a forged callback can never knock
// a paid order back to FAILED. A bad signature on an unpaid order marks the
// payment failed and errors out.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID, paymentRef, signature string) (*domain.Order, error) {
	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == domain.PaymentPaid {
		return order, nil
	}

	now := s.now()
	if !gateway.VerifyPaymentSignature(order.GatewayOrderRef, paymentRef, signature, s.keySecret) {
		if order.MarkPaymentFailed(paymentRef, now) {
			if err := s.update(ctx, order); err != nil {
				return nil, err
			}
			s.notify(ctx, events.EventPaymentFailed, order, "signature mismatch")
		}
		return nil, ErrSignatureMismatch
	}

	changed, err := order.MarkPaid(paymentRef, signature, now)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.update(ctx, order); err != nil {
			return nil, err
		}
		s.notify(ctx, events.EventPaymentCaptured, order, "")
	}
	return order, nil
}

// CancelOrder cancels on behalf of a user (ownership and step ceiling
// enforced) or an admin. A paid order queues a refund for the sweep.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, identifier string, actor domain.Actor) (*domain.Order, error) {
	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor == domain.ActorUser && !order.Owner(identifier) {
		return nil, ErrNotOwner
	}
	if order.Status == domain.StatusCancelled {
		return order, nil
	}

	if err := order.Cancel(actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.update(ctx, order); err != nil {
		return nil, err
	}
	s.notify(ctx, events.EventOrderCancelled, order, "")
	return order, nil
}

// UpdateStatus advances the fulfillment pipeline (admin only).
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (*domain.Order, error) {
	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	prev := order.Status
	if err := order.AdvanceFulfillment(target, s.now()); err != nil {
		return nil, err
	}
	if order.Status == prev {
		return order, nil
	}
	if err := s.update(ctx, order); err != nil {
		return nil, err
	}
	s.notify(ctx, events.EventStatusChanged, order, string(target))
	return order, nil
}

// ApplyPaymentEdit performs an admin direct edit of the payment status.
func (s *OrderService) ApplyPaymentEdit(ctx context.Context, orderID string, target domain.PaymentStatus) (*domain.Order, error) {
	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	prev := order.PaymentStatus
	if err := order.ApplyPaymentEdit(target, s.now()); err != nil {
		return nil, err
	}
	if order.PaymentStatus == prev {
		return order, nil
	}
	if err := s.update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID, identifier string) (*domain.Order, error) {
	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if identifier != "" && !order.Owner(identifier) {
		return nil, ErrNotOwner
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, identifier string) ([]*domain.Order, error) {
	if identifier == "" {
		return nil, ErrIdentityRequired
	}
	return s.repo.ListByOwner(ctx, identifier, identifier)
}

func (s *OrderService) ListAllOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.repo.ListAll(ctx)
}

// update persists the order. Optimistic-lock conflicts surface to the caller;
// handlers translate them to a retryable status.
func (s *OrderService) update(ctx context.Context, order *domain.Order) error {
	return s.repo.Update(ctx, order)
}

func (s *OrderService) notify(ctx context.Context, eventType string, order *domain.Order, detail string) {
	identifier := order.EmailID
	if identifier == "" {
		identifier = order.PhoneNumber
	}
	err := s.notifier.Notify(ctx, eventType, events.Notification{
		OrderID:    order.OrderID,
		Identifier: identifier,
		Status:     string(order.Status),
		Detail:     detail,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("event_type", eventType),
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
}

func newOrderID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:8])
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
