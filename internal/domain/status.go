package domain

// OrderStatus tracks the fulfillment side of an order: the linear delivery
// pipeline, cancellation, and the post-delivery return workflow.
type OrderStatus string

const (
	StatusPending        OrderStatus = "PENDING"
	StatusOrderPlaced    OrderStatus = "ORDER_PLACED"
	StatusOrderPacked    OrderStatus = "ORDER_PACKED"
	StatusInTransit      OrderStatus = "IN_TRANSIT"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"

	StatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	StatusReturnAccepted  OrderStatus = "RETURN_ACCEPTED"
	StatusReturnReceived  OrderStatus = "RETURN_RECEIVED"
	StatusReturnRejected  OrderStatus = "RETURN_REJECTED"
	StatusReturned        OrderStatus = "RETURNED"

	StatusCancelled     OrderStatus = "CANCELLED"
	StatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
)

// PaymentStatus tracks the money side independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "PENDING"
	PaymentAuthorized      PaymentStatus = "PAYMENT_AUTHORIZED"
	PaymentPaid            PaymentStatus = "PAID"
	PaymentFailed          PaymentStatus = "FAILED"
	PaymentCancelled       PaymentStatus = "CANCELLED"
	PaymentRefundRequested PaymentStatus = "REFUND_REQUESTED"
	PaymentRefundInitiated PaymentStatus = "REFUND_INITIATED"
	PaymentRefundFailed    PaymentStatus = "REFUND_FAILED"
	PaymentRefundDone      PaymentStatus = "REFUND_DONE"
)

// RefundContext records which workflow initiated a refund, so the terminal
// order status can be resolved without guessing when the gateway confirms.
type RefundContext string

const (
	RefundContextNone   RefundContext = ""
	RefundContextReturn RefundContext = "RETURN"
	RefundContextCancel RefundContext = "CANCEL"
)

// Step indexes for states outside the forward pipeline.
const (
	StepCancelled = -1
	StepReturn    = -2
)

// fulfillmentSteps is the linear delivery pipeline. Index == currentStep.
var fulfillmentSteps = []OrderStatus{
	StatusPending,
	StatusOrderPlaced,
	StatusOrderPacked,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
}

// StepIndex returns the pipeline position of a fulfillment status, or -1 if
// the status is not part of the forward pipeline.
func StepIndex(s OrderStatus) int {
	for i, step := range fulfillmentSteps {
		if step == s {
			return i
		}
	}
	return -1
}

// IsFulfillment reports whether s belongs to the forward delivery pipeline.
func IsFulfillment(s OrderStatus) bool {
	return StepIndex(s) >= 0
}

// IsReturnFlow reports whether s belongs to the return family. Once an order
// enters the return flow it owns the order exclusively.
func IsReturnFlow(s OrderStatus) bool {
	switch s {
	case StatusReturnRequested, StatusReturnAccepted, StatusReturnReceived,
		StatusReturnRejected, StatusReturned:
		return true
	}
	return false
}

// IsTerminal reports whether no further order-status transition is legal.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusReturned || s == StatusReturnRejected
}

func (s OrderStatus) String() string { return string(s) }

func (s PaymentStatus) String() string { return string(s) }
