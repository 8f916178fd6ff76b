package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository is an in-memory OrderRepository/ComplaintRepository with
// the same optimistic-lock semantics as the Postgres implementation. Used by
// unit tests and local runs without a database.
type MemoryRepository struct {
	mu         sync.RWMutex
	orders     map[string]*domain.Order // keyed by orderID
	complaints map[uuid.UUID]*domain.Complaint
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:     make(map[string]*domain.Order),
		complaints: make(map[uuid.UUID]*domain.Complaint),
	}
}

func (m *MemoryRepository) Create(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.OrderID]; ok {
		return ErrDuplicateOrder
	}
	order.Version = 1
	cp := cloneOrder(order)
	m.orders[order.OrderID] = cp
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[order.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return ErrOptimisticLock
	}
	order.Version++
	order.UpdatedAt = time.Now()
	m.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (m *MemoryRepository) GetByOrderID(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.orders[orderID]; ok {
		return cloneOrder(o), nil
	}
	return nil, ErrOrderNotFound
}

func (m *MemoryRepository) GetByGatewayOrderRef(_ context.Context, ref string) (*domain.Order, error) {
	return m.find(func(o *domain.Order) bool { return ref != "" && o.GatewayOrderRef == ref })
}

func (m *MemoryRepository) GetByGatewayPaymentRef(_ context.Context, ref string) (*domain.Order, error) {
	return m.find(func(o *domain.Order) bool { return ref != "" && o.GatewayPaymentRef == ref })
}

func (m *MemoryRepository) GetByRefundRef(_ context.Context, ref string) (*domain.Order, error) {
	return m.find(func(o *domain.Order) bool { return ref != "" && o.RefundRef == ref })
}

func (m *MemoryRepository) FindPendingByCartSignature(_ context.Context, owner, cartSig string) (*domain.Order, error) {
	return m.find(func(o *domain.Order) bool {
		return o.CartSignature == cartSig &&
			o.PaymentStatus == domain.PaymentPending &&
			o.Owner(owner)
	})
}

func (m *MemoryRepository) find(match func(*domain.Order) bool) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if match(o) {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *MemoryRepository) ListByOwner(_ context.Context, emailID, phone string) ([]*domain.Order, error) {
	return m.listWhere(func(o *domain.Order) bool {
		return (emailID != "" && o.EmailID == emailID) || (phone != "" && o.PhoneNumber == phone)
	}), nil
}

func (m *MemoryRepository) ListAll(_ context.Context) ([]*domain.Order, error) {
	return m.listWhere(func(*domain.Order) bool { return true }), nil
}

func (m *MemoryRepository) FindRefundRequested(_ context.Context, maxRetries, limit int) ([]*domain.Order, error) {
	out := m.listWhere(func(o *domain.Order) bool {
		return o.PaymentStatus == domain.PaymentRefundRequested && o.RefundRetryCount < maxRetries
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) listWhere(match func(*domain.Order) bool) []*domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) CreateComplaint(_ context.Context, c *domain.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.complaints[c.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetComplaintByID(_ context.Context, id uuid.UUID) (*domain.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.complaints[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, ErrComplaintNotFound
}

func (m *MemoryRepository) ListComplaints(_ context.Context) ([]*domain.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Complaint, 0, len(m.complaints))
	for _, c := range m.complaints {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) UpdateComplaint(_ context.Context, c *domain.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.complaints[c.ID]; !ok {
		return ErrComplaintNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now()
	m.complaints[c.ID] = &cp
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]domain.HistoryEntry(nil), o.StatusHistory...)
	return &cp
}
