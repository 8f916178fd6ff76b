package service

import (
	"context"
	"errors"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/events"
	"github.com/Shinra-Deskware/madzilla-backend/internal/gateway"
	"github.com/Shinra-Deskware/madzilla-backend/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrComplaintClosed = errors.New("complaint is already decided")

// ReturnService runs the return workflow. The order's status is the source of
// truth; the complaint ticket mirrors it for the admin UI.
type ReturnService struct {
	orders     repository.OrderRepository
	complaints repository.ComplaintRepository
	gateway    gateway.Client
	notifier   events.Notifier
	logger     *zap.Logger
	now        func() time.Time
}

func NewReturnService(orders repository.OrderRepository, complaints repository.ComplaintRepository, gw gateway.Client, notifier events.Notifier, logger *zap.Logger) *ReturnService {
	return &ReturnService{
		orders:     orders,
		complaints: complaints,
		gateway:    gw,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// ComplaintRequest files either a free-form complaint or a return request.
type ComplaintRequest struct {
	OrderID    string
	Identifier string
	Type       domain.ComplaintType
	Title      string
	Message    string
	Images     []string
}

// File creates the ticket. A RETURN ticket also moves the order to
// RETURN_REQUESTED, which is only legal from DELIVERED.
func (s *ReturnService) File(ctx context.Context, req ComplaintRequest) (*domain.Complaint, error) {
	order, err := s.orders.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.Owner(req.Identifier) {
		return nil, ErrNotOwner
	}

	now := s.now()
	if req.Type == domain.ComplaintTypeReturn {
		if err := order.RequestReturn(now); err != nil {
			return nil, err
		}
		if err := s.orders.Update(ctx, order); err != nil {
			return nil, err
		}
	}

	c := domain.NewComplaint(req.OrderID, order.EmailID, order.PhoneNumber,
		req.Type, req.Title, req.Message, req.Images, now)
	if err := s.complaints.CreateComplaint(ctx, c); err != nil {
		return nil, err
	}

	if req.Type == domain.ComplaintTypeReturn {
		s.notifyOrder(ctx, events.EventReturnRequested, order, "")
	}
	return c, nil
}

// Approve accepts a return request (admin).
func (s *ReturnService) Approve(ctx context.Context, complaintID uuid.UUID, adminNotes string) (*domain.Complaint, error) {
	return s.decide(ctx, complaintID, adminNotes, true)
}

// Reject declines a return request (admin). The rejection is terminal for the
// order's return flow.
func (s *ReturnService) Reject(ctx context.Context, complaintID uuid.UUID, reason string) (*domain.Complaint, error) {
	return s.decide(ctx, complaintID, reason, false)
}

func (s *ReturnService) decide(ctx context.Context, complaintID uuid.UUID, notes string, approve bool) (*domain.Complaint, error) {
	c, err := s.complaints.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ComplaintOpen {
		return nil, ErrComplaintClosed
	}

	now := s.now()
	if c.Type == domain.ComplaintTypeReturn {
		order, err := s.orders.GetByOrderID(ctx, c.OrderID)
		if err != nil {
			return nil, err
		}
		if approve {
			err = order.ApproveReturn(now)
		} else {
			err = order.RejectReturn(notes, now)
		}
		if err != nil {
			return nil, err
		}
		if err := s.orders.Update(ctx, order); err != nil {
			return nil, err
		}
		s.notifyOrder(ctx, events.EventReturnDecided, order, notes)
	}

	if approve {
		c.Status = domain.ComplaintApproved
		c.ReturnApprovedAt = &now
	} else {
		c.Status = domain.ComplaintRejected
		c.ReturnRejectedAt = &now
	}
	c.AdminNotes = notes
	c.UpdatedAt = now
	if err := s.complaints.UpdateComplaint(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Receive records the returned parcel back in the warehouse and starts the
// refund. The refund is marked initiated optimistically; when the synchronous
// gateway call fails it falls back to the retry queue and the receive step
// still succeeds.
func (s *ReturnService) Receive(ctx context.Context, orderID, adminNotes string) (*domain.Order, error) {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := order.ReceiveReturn(adminNotes, now); err != nil {
		return nil, err
	}

	refundRef, refundErr := s.gateway.CreateRefund(ctx, order.GatewayPaymentRef, minorUnits(order.Total+order.Shipping))
	if refundErr != nil {
		s.logger.Warn("synchronous refund failed, queuing for retry",
			zap.String("order_id", order.OrderID),
			zap.Error(refundErr))
		order.QueueRefundRetry(now)
	} else {
		order.RefundRef = refundRef
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return nil, err
	}

	if c, err := s.openReturnTicket(ctx, orderID); err == nil {
		c.ReturnReceivedAt = &now
		c.UpdatedAt = now
		if err := s.complaints.UpdateComplaint(ctx, c); err != nil {
			s.logger.Warn("failed to stamp complaint receive time",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}

	if refundErr == nil {
		s.notifyOrder(ctx, events.EventRefundInitiated, order, "")
	}
	return order, nil
}

func (s *ReturnService) ListComplaints(ctx context.Context) ([]*domain.Complaint, error) {
	return s.complaints.ListComplaints(ctx)
}

// openReturnTicket finds the approved RETURN ticket backing an order's return
// flow.
func (s *ReturnService) openReturnTicket(ctx context.Context, orderID string) (*domain.Complaint, error) {
	all, err := s.complaints.ListComplaints(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.OrderID == orderID && c.Type == domain.ComplaintTypeReturn && c.Status == domain.ComplaintApproved {
			return c, nil
		}
	}
	return nil, repository.ErrComplaintNotFound
}

func (s *ReturnService) notifyOrder(ctx context.Context, eventType string, order *domain.Order, detail string) {
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
