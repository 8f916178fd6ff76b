package domain

import (
	"time"

	"github.com/google/uuid"
)

// ComplaintType separates free-form complaints from return requests. Only
// RETURN tickets drive order-level transitions.
type ComplaintType string

const (
	ComplaintTypeComplaint ComplaintType = "COMPLAINT"
	ComplaintTypeReturn    ComplaintType = "RETURN"
)

type ComplaintStatus string

const (
	ComplaintOpen     ComplaintStatus = "OPEN"
	ComplaintApproved ComplaintStatus = "APPROVED"
	ComplaintRejected ComplaintStatus = "REJECTED"
)

// Complaint is a UI/audit convenience layered over the order state machine.
// The order's status, not the ticket's, decides what the customer may do
// next.
type Complaint struct {
	ID      uuid.UUID
	OrderID string

	EmailID   string
	UserPhone string

	Type    ComplaintType
	Title   string
	Message string
	Images  []string

	Status     ComplaintStatus
	AdminNotes string

	ReturnApprovedAt *time.Time
	ReturnRejectedAt *time.Time
	ReturnReceivedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewComplaint(orderID, emailID, phone string, typ ComplaintType, title, message string, images []string, now time.Time) *Complaint {
	return &Complaint{
		ID:        uuid.New(),
		OrderID:   orderID,
		EmailID:   emailID,
		UserPhone: phone,
		Type:      typ,
		Title:     title,
		Message:   message,
		Images:    images,
		Status:    ComplaintOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
