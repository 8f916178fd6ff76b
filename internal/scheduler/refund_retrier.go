package scheduler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/events"
	"github.com/Shinra-Deskware/madzilla-backend/internal/gateway"
	"github.com/Shinra-Deskware/madzilla-backend/internal/repository"
	"go.uber.org/zap"
)

// RefundRetrier sweeps queued refunds (paymentStatus REFUND_REQUESTED) and
// retries them against the gateway. Orders at the retry cap are never
// selected; they stay parked for an operator.
type RefundRetrier struct {
	repo      repository.OrderRepository
	gateway   gateway.Client
	notifier  events.Notifier
	logger    *zap.Logger
	tick      time.Duration
	batchSize int
	now       func() time.Time
}

func NewRefundRetrier(repo repository.OrderRepository, gw gateway.Client, notifier events.Notifier, tick time.Duration, batchSize int, logger *zap.Logger) *RefundRetrier {
	return &RefundRetrier{
		repo:      repo,
		gateway:   gw,
		notifier:  notifier,
		logger:    logger,
		tick:      tick,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (r *RefundRetrier) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass over the queued refunds.
func (r *RefundRetrier) Sweep(ctx context.Context) {
	orders, err := r.repo.FindRefundRequested(ctx, domain.MaxRefundRetries, r.batchSize)
	if err != nil {
		r.logger.Error("refund sweep query failed", zap.Error(err))
		return
	}

	for _, order := range orders {
		r.attempt(ctx, order)
	}
}

func (r *RefundRetrier) attempt(ctx context.Context, order *domain.Order) {
	now := r.now()
	refundRef, err := r.gateway.CreateRefund(ctx, order.GatewayPaymentRef,
		int64(math.Round((order.Total+order.Shipping)*100)))
	if err != nil {
		order.RecordRefundAttemptFailure(now)
		if order.RefundRetryCount >= domain.MaxRefundRetries {
			r.logger.Error("refund retries exhausted, operator intervention required",
				zap.String("order_id", order.OrderID),
				zap.String("payment_ref", order.GatewayPaymentRef),
				zap.Int("attempts", order.RefundRetryCount))
		} else {
			r.logger.Warn("refund attempt failed",
				zap.String("order_id", order.OrderID),
				zap.Int("attempts", order.RefundRetryCount),
				zap.Error(err))
		}
	} else {
		order.BeginRefundAttempt(refundRef, now)
	}

	if updateErr := r.repo.Update(ctx, order); updateErr != nil {
		if errors.Is(updateErr, repository.ErrOptimisticLock) {
			// A webhook got there first; the next sweep re-evaluates.
			r.logger.Info("refund sweep lost update race",
				zap.String("order_id", order.OrderID))
			return
		}
		r.logger.Error("failed to persist refund attempt",
			zap.String("order_id", order.OrderID), zap.Error(updateErr))
		return
	}

	if err == nil {
		identifier := order.EmailID
		if identifier == "" {
			identifier = order.PhoneNumber
		}
		notifyErr := r.notifier.Notify(ctx, events.EventRefundInitiated, events.Notification{
			OrderID:    order.OrderID,
			Identifier: identifier,
			Status:     string(order.Status),
			OccurredAt: now,
		})
		if notifyErr != nil {
			r.logger.Warn("notification dispatch failed",
				zap.String("order_id", order.OrderID), zap.Error(notifyErr))
		}
	}
}
