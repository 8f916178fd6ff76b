package domain

import (
	"errors"
	"fmt"
	"time"
)

// MaxRefundRetries bounds automatic refund attempts. Past this the order is
// left for manual operator intervention.
const MaxRefundRetries = 5

// userCancelStepCeiling: user-initiated cancel is legal only before the
// parcel is in transit. Admin cancel has no ceiling.
const userCancelStepCeiling = 3

var (
	ErrMissingRefundContext = errors.New("refund context not set at refund initiation")
	ErrPaymentRefImmutable  = errors.New("gateway payment ref is immutable once the order is paid")
)

// IllegalTransitionError names the rejected pair so callers can report the
// current state back to the client.
type IllegalTransitionError struct {
	From, To string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

func illegalOrder(from, to OrderStatus) error {
	return &IllegalTransitionError{From: string(from), To: string(to)}
}

func illegalPayment(from, to PaymentStatus) error {
	return &IllegalTransitionError{From: string(from), To: string(to)}
}

// adminPaymentEdits is the only table for direct admin edits of the payment
// status. Anything not listed is rejected.
var adminPaymentEdits = map[PaymentStatus][]PaymentStatus{
	PaymentPaid:            {PaymentRefundInitiated},
	PaymentRefundInitiated: {PaymentRefundDone},
}

// Actor distinguishes user- from admin-triggered transitions where the rules
// differ (cancellation ceiling).
type Actor int

const (
	ActorUser Actor = iota
	ActorAdmin
)

// AdvanceFulfillment moves the order forward along the delivery pipeline.
// Only strictly forward moves are legal; targeting the current status is an
// idempotent no-op. Return-family and cancelled orders reject all pipeline
// moves.
func (o *Order) AdvanceFulfillment(target OrderStatus, now time.Time) error {
	if o.Status == target {
		return nil
	}
	if IsReturnFlow(o.Status) || o.Status == StatusCancelled {
		return illegalOrder(o.Status, target)
	}
	targetStep := StepIndex(target)
	if targetStep < 0 {
		return illegalOrder(o.Status, target)
	}
	if cur := StepIndex(o.Status); cur < 0 || targetStep <= cur {
		return illegalOrder(o.Status, target)
	}

	o.Status = target
	o.CurrentStep = targetStep
	o.appendHistory(targetStep, string(target), now)
	if target == StatusDelivered {
		o.DeliveredAt = timePtr(now)
	}
	o.touch(now)
	return nil
}

// Cancel ends the order before delivery. A paid order queues a refund
// (REFUND_REQUESTED, context CANCEL); an unpaid one just closes the payment.
func (o *Order) Cancel(by Actor, now time.Time) error {
	if o.Status == StatusCancelled {
		return nil
	}
	if IsReturnFlow(o.Status) || o.Status == StatusDelivered {
		return illegalOrder(o.Status, StatusCancelled)
	}
	if by == ActorUser && o.CurrentStep >= userCancelStepCeiling {
		return illegalOrder(o.Status, StatusCancelled)
	}

	if o.PaymentStatus == PaymentPaid {
		o.PaymentStatus = PaymentRefundRequested
		o.RefundContext = RefundContextCancel
	} else {
		o.PaymentStatus = PaymentCancelled
	}

	label := string(StatusCancelled)
	if by == ActorAdmin {
		label = "CANCELLED (Admin)"
	}
	o.Status = StatusCancelled
	o.CurrentStep = StepCancelled
	o.CancelledAt = timePtr(now)
	o.appendHistory(StepCancelled, label, now)
	o.touch(now)
	return nil
}

// RequestReturn opens the return workflow. Legal only from DELIVERED; a
// second request while any return state is active is rejected.
func (o *Order) RequestReturn(now time.Time) error {
	if IsReturnFlow(o.Status) {
		return illegalOrder(o.Status, StatusReturnRequested)
	}
	if o.Status != StatusDelivered {
		return illegalOrder(o.Status, StatusReturnRequested)
	}
	o.Status = StatusReturnRequested
	o.CurrentStep = StepReturn
	o.ReturnRequestedAt = timePtr(now)
	o.appendHistory(StepReturn, string(StatusReturnRequested), now)
	o.touch(now)
	return nil
}

// ApproveReturn is admin-only, legal only from RETURN_REQUESTED.
func (o *Order) ApproveReturn(now time.Time) error {
	if o.Status != StatusReturnRequested {
		return illegalOrder(o.Status, StatusReturnAccepted)
	}
	o.Status = StatusReturnAccepted
	o.ReturnAcceptedAt = timePtr(now)
	o.appendHistory(StepReturn, string(StatusReturnAccepted), now)
	o.touch(now)
	return nil
}

// RejectReturn is admin-only, legal only from RETURN_REQUESTED, and terminal.
func (o *Order) RejectReturn(reason string, now time.Time) error {
	if o.Status != StatusReturnRequested {
		return illegalOrder(o.Status, StatusReturnRejected)
	}
	o.Status = StatusReturnRejected
	if reason != "" {
		o.AdminNotes = reason
	}
	o.appendHistory(StepReturn, string(StatusReturnRejected), now)
	o.touch(now)
	return nil
}

// ReceiveReturn marks the item back in the warehouse and optimistically
// flags the refund as initiated with an explicit RETURN context. The caller
// performs the gateway call; on synchronous failure it downgrades via
// QueueRefundRetry.
func (o *Order) ReceiveReturn(adminNotes string, now time.Time) error {
	if o.Status != StatusReturnAccepted {
		return illegalOrder(o.Status, StatusReturnReceived)
	}
	o.Status = StatusReturnReceived
	o.PaymentStatus = PaymentRefundInitiated
	o.RefundContext = RefundContextReturn
	if adminNotes != "" {
		o.AdminNotes = adminNotes
	}
	o.ReturnReceivedAt = timePtr(now)
	o.RefundAttemptedAt = timePtr(now)
	o.appendHistory(StepReturn, string(StatusReturnReceived), now)
	o.touch(now)
	return nil
}

// QueueRefundRetry parks the refund for the background sweep after a failed
// initiation attempt. The receive/cancel step that triggered it still counts
// as succeeded.
func (o *Order) QueueRefundRetry(now time.Time) {
	o.PaymentStatus = PaymentRefundRequested
	o.RefundRetryCount++
	o.RefundAttemptedAt = timePtr(now)
	o.touch(now)
}

// ApplyPaymentEdit performs a direct admin change of the payment status.
// Only pairs present in adminPaymentEdits are legal.
func (o *Order) ApplyPaymentEdit(target PaymentStatus, now time.Time) error {
	if o.PaymentStatus == target {
		return nil
	}
	for _, next := range adminPaymentEdits[o.PaymentStatus] {
		if next == target {
			o.PaymentStatus = target
			if target == PaymentRefundDone {
				o.RefundCompletedAt = timePtr(now)
			}
			o.touch(now)
			return nil
		}
	}
	return illegalPayment(o.PaymentStatus, target)
}

// MarkAuthorized records the gateway's authorization. Capture may race ahead
// of this event, so an already-paid order is left untouched.
func (o *Order) MarkAuthorized(now time.Time) bool {
	if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentAuthorized {
		return false
	}
	o.PaymentStatus = PaymentAuthorized
	o.touch(now)
	return true
}

// MarkPaid applies a confirmed capture: payment PAID, order placed, step
// advanced to at least 1 (never regressed). Replays with the same payment
// ref are no-ops. Returns whether state changed.
func (o *Order) MarkPaid(paymentRef, signature string, now time.Time) (bool, error) {
	if o.PaymentStatus == PaymentPaid {
		if o.GatewayPaymentRef == paymentRef {
			return false, nil
		}
		return false, ErrPaymentRefImmutable
	}

	o.PaymentStatus = PaymentPaid
	o.GatewayPaymentRef = paymentRef
	if signature != "" {
		o.GatewaySignature = signature
	}
	// Advance to ORDER_PLACED unless fulfillment already moved past it; the
	// step is never regressed by a late capture event.
	if !IsReturnFlow(o.Status) && o.Status != StatusCancelled && StepIndex(o.Status) < 1 {
		o.Status = StatusOrderPlaced
		o.CurrentStep = 1
		o.appendHistory(1, string(StatusOrderPlaced), now)
	}
	o.touch(now)
	return true, nil
}

// MarkPaymentFailed records a failed or signature-mismatched payment attempt.
// It only applies while the payment is still in flight; once captured,
// cancelled, or in the refund flow a conflicting failure report is ignored.
func (o *Order) MarkPaymentFailed(failedRef string, now time.Time) bool {
	switch o.PaymentStatus {
	case PaymentPending, PaymentAuthorized, PaymentFailed:
	default:
		return false
	}
	if o.PaymentStatus == PaymentFailed && o.FailedPaymentRef == failedRef {
		return false
	}
	o.PaymentStatus = PaymentFailed
	o.Status = StatusPaymentFailed
	o.CurrentStep = 0
	o.FailedPaymentRef = failedRef
	o.appendHistory(0, string(StatusPaymentFailed), now)
	o.touch(now)
	return true
}

// MarkRefundInitiated records the gateway's refund.created. Skipped when the
// refund already progressed to INITIATED or DONE.
func (o *Order) MarkRefundInitiated(refundRef string, now time.Time) bool {
	if o.PaymentStatus == PaymentRefundInitiated || o.PaymentStatus == PaymentRefundDone {
		return false
	}
	o.PaymentStatus = PaymentRefundInitiated
	o.RefundRef = refundRef
	o.RefundAttemptedAt = timePtr(now)
	o.touch(now)
	return true
}

// MarkRefundProcessed applies a confirmed refund. The terminal order status
// comes strictly from the recorded RefundContext; a missing context is a
// data-integrity fault: the payment status still advances (the money moved)
// but the order status is left for operator resolution.
func (o *Order) MarkRefundProcessed(refundRef string, now time.Time) (bool, error) {
	if o.PaymentStatus == PaymentRefundDone && o.RefundRef == refundRef {
		return false, nil
	}

	o.PaymentStatus = PaymentRefundDone
	o.RefundRef = refundRef
	o.RefundCompletedAt = timePtr(now)

	switch o.RefundContext {
	case RefundContextReturn:
		o.Status = StatusReturned
		o.CurrentStep = StepReturn
		o.ReturnCompletedAt = timePtr(now)
		o.appendHistory(StepReturn, string(StatusReturned), now)
	case RefundContextCancel:
		if o.Status != StatusCancelled {
			o.Status = StatusCancelled
			o.CurrentStep = StepCancelled
			o.CancelledAt = timePtr(now)
			o.appendHistory(StepCancelled, string(StatusCancelled), now)
		}
	default:
		o.touch(now)
		return true, ErrMissingRefundContext
	}
	o.touch(now)
	return true, nil
}

// MarkRefundFailed handles the gateway's refund.failed. While retry budget
// remains the refund goes back to the queued state so the sweep picks it up;
// once exhausted it parks at REFUND_FAILED for manual intervention.
func (o *Order) MarkRefundFailed(refundRef string, now time.Time) bool {
	if (o.PaymentStatus == PaymentRefundFailed || o.PaymentStatus == PaymentRefundRequested) &&
		o.RefundRef == refundRef {
		return false
	}
	if refundRef != "" {
		o.RefundRef = refundRef
	}
	if o.RefundRetryCount < MaxRefundRetries {
		o.PaymentStatus = PaymentRefundRequested
	} else {
		o.PaymentStatus = PaymentRefundFailed
	}
	o.touch(now)
	return true
}

// BeginRefundAttempt transitions a queued refund to INITIATED after a
// successful gateway CreateRefund call from the retry sweep.
func (o *Order) BeginRefundAttempt(refundRef string, now time.Time) {
	o.PaymentStatus = PaymentRefundInitiated
	o.RefundRef = refundRef
	o.RefundRetryCount++
	o.RefundAttemptedAt = timePtr(now)
	o.touch(now)
}

// RecordRefundAttemptFailure counts a failed sweep attempt; the order stays
// queued until the budget runs out.
func (o *Order) RecordRefundAttemptFailure(now time.Time) {
	o.RefundRetryCount++
	o.RefundAttemptedAt = timePtr(now)
	o.touch(now)
}
