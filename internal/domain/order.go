package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a snapshot of one cart line at checkout time. Items are
// immutable after payment capture.
type OrderItem struct {
	ProductRef string  `json:"product_ref"`
	Title      string  `json:"title"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
}

// Address is the shipping address captured with the order.
type Address struct {
	FullName string `json:"full_name"`
	Line1    string `json:"line1"`
	City     string `json:"city"`
	State    string `json:"state"`
	PinCode  string `json:"pin_code"`
}

// HistoryEntry is one row of the append-only status ledger. Entries are
// never edited or reordered after insertion.
type HistoryEntry struct {
	Step  int       `json:"step"`
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

// Order is the aggregate root. All mutation goes through the transition
// methods in transitions.go; handlers never write status fields directly.
type Order struct {
	ID      uuid.UUID
	OrderID string // client-facing, e.g. ORD-3F2A91BC

	EmailID     string
	PhoneNumber string

	Items    []OrderItem
	Address  Address
	Total    float64
	Shipping float64

	PaymentMethod string
	PaymentStatus PaymentStatus
	Status        OrderStatus
	CurrentStep   int
	StatusHistory []HistoryEntry

	GatewayOrderRef   string
	GatewayPaymentRef string
	GatewaySignature  string
	GatewayReceipt    string
	FailedPaymentRef  string

	RefundRef        string
	RefundContext    RefundContext
	RefundRetryCount int

	CartSignature string
	AdminNotes    string

	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	ReturnRequestedAt *time.Time
	ReturnAcceptedAt  *time.Time
	ReturnReceivedAt  *time.Time
	ReturnCompletedAt *time.Time
	RefundAttemptedAt *time.Time
	RefundCompletedAt *time.Time

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder builds a pending order with its opening ledger entry.
func NewOrder(orderID, emailID, phone string, items []OrderItem, addr Address, total, shipping float64, cartSig string, now time.Time) *Order {
	o := &Order{
		ID:            uuid.New(),
		OrderID:       orderID,
		EmailID:       emailID,
		PhoneNumber:   phone,
		Items:         items,
		Address:       addr,
		Total:         total,
		Shipping:      shipping,
		PaymentMethod: "GATEWAY",
		PaymentStatus: PaymentPending,
		Status:        StatusPending,
		CurrentStep:   0,
		CartSignature: cartSig,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.appendHistory(0, string(StatusPending), now)
	return o
}

// Owner reports whether the given identifier (email or phone) owns the order.
func (o *Order) Owner(identifier string) bool {
	if identifier == "" {
		return false
	}
	return identifier == o.EmailID || identifier == o.PhoneNumber
}

func (o *Order) appendHistory(step int, label string, at time.Time) {
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{Step: step, Label: label, At: at})
}

// touch stamps the modification time. The version counter is owned by the
// repository: it is compared and incremented inside the conditional update.
func (o *Order) touch(at time.Time) {
	o.UpdatedAt = at
}

func timePtr(t time.Time) *time.Time { return &t }
