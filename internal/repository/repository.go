package repository

import (
	"context"
	"errors"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrComplaintNotFound = errors.New("complaint not found")
	ErrDuplicateOrder    = errors.New("order with this orderId already exists")

	// ErrOptimisticLock means the row changed under us: the caller must
	// re-read and either no-op or retry the transition.
	ErrOptimisticLock = errors.New("optimistic locking failed")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OrderRepository is the only path to durable order state. Update is a
// conditional write keyed on the version loaded at read time.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	GetByGatewayOrderRef(ctx context.Context, ref string) (*domain.Order, error)
	GetByGatewayPaymentRef(ctx context.Context, ref string) (*domain.Order, error)
	GetByRefundRef(ctx context.Context, ref string) (*domain.Order, error)
	ListByOwner(ctx context.Context, emailID, phone string) ([]*domain.Order, error)
	ListAll(ctx context.Context) ([]*domain.Order, error)

	// FindPendingByCartSignature resolves a retried checkout to its
	// still-pending order so the payment intent is reused, not duplicated.
	FindPendingByCartSignature(ctx context.Context, owner, cartSig string) (*domain.Order, error)

	// FindRefundRequested returns orders queued for the refund retry sweep.
	FindRefundRequested(ctx context.Context, maxRetries, limit int) ([]*domain.Order, error)

	Update(ctx context.Context, order *domain.Order) error
	Close() error
}

// ComplaintRepository stores the return/complaint tickets layered over the
// order state machine.
type ComplaintRepository interface {
	CreateComplaint(ctx context.Context, c *domain.Complaint) error
	GetComplaintByID(ctx context.Context, id uuid.UUID) (*domain.Complaint, error)
	ListComplaints(ctx context.Context) ([]*domain.Complaint, error)
	UpdateComplaint(ctx context.Context, c *domain.Complaint) error
}
