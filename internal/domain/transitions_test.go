package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder() *Order {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return NewOrder("ORD-AAA1", "buyer@example.com", "9876543210",
		[]OrderItem{{ProductRef: "sku-1", Title: "Kurta", UnitPrice: 1200, Quantity: 1}},
		Address{FullName: "A Buyer", City: "Pune"}, 1200, 49, "sig", now)
}

func paidOrder() *Order {
	o := newTestOrder()
	_, err := o.MarkPaid("pay_123", "", time.Now())
	if err != nil {
		panic(err)
	}
	return o
}

func deliveredOrder() *Order {
	o := paidOrder()
	for _, s := range []OrderStatus{StatusOrderPacked, StatusInTransit, StatusOutForDelivery, StatusDelivered} {
		if err := o.AdvanceFulfillment(s, time.Now()); err != nil {
			panic(err)
		}
	}
	return o
}

func TestNewOrder_OpensLedger(t *testing.T) {
	o := newTestOrder()

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, 0, o.CurrentStep)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, string(StatusPending), o.StatusHistory[0].Label)
}

func TestAdvanceFulfillment_ForwardOnly(t *testing.T) {
	o := paidOrder()

	require.NoError(t, o.AdvanceFulfillment(StatusOrderPacked, time.Now()))
	assert.Equal(t, 2, o.CurrentStep)

	// Backwards is illegal.
	err := o.AdvanceFulfillment(StatusOrderPlaced, time.Now())
	var ite *IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, "ORDER_PACKED", ite.From)
	assert.Equal(t, "ORDER_PLACED", ite.To)
	assert.Equal(t, StatusOrderPacked, o.Status)
}

func TestAdvanceFulfillment_SkippingStatesStillForward(t *testing.T) {
	o := paidOrder()

	// PENDING -> DELIVERED directly is rejected for a fresh order.
	fresh := newTestOrder()
	err := fresh.AdvanceFulfillment(StatusDelivered, time.Now())
	assert.Error(t, err)
	assert.Equal(t, StatusPending, fresh.Status)
	assert.Len(t, fresh.StatusHistory, 1)

	// A paid order may jump several steps forward.
	require.NoError(t, o.AdvanceFulfillment(StatusOutForDelivery, time.Now()))
	assert.Equal(t, 4, o.CurrentStep)
}

func TestAdvanceFulfillment_SameTargetIsNoop(t *testing.T) {
	o := paidOrder()
	historyLen := len(o.StatusHistory)

	require.NoError(t, o.AdvanceFulfillment(StatusOrderPlaced, time.Now()))
	assert.Len(t, o.StatusHistory, historyLen)
}

func TestAdvanceFulfillment_DeliveredStampsDate(t *testing.T) {
	o := deliveredOrder()

	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, StatusDelivered, o.Status)
	assert.Equal(t, 5, o.CurrentStep)
}

func TestCancel_UserBeforeTransit(t *testing.T) {
	o := paidOrder()
	require.NoError(t, o.AdvanceFulfillment(StatusOrderPacked, time.Now()))

	require.NoError(t, o.Cancel(ActorUser, time.Now()))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, StepCancelled, o.CurrentStep)
	// Paid order queues a refund with an explicit context.
	assert.Equal(t, PaymentRefundRequested, o.PaymentStatus)
	assert.Equal(t, RefundContextCancel, o.RefundContext)
	require.NotNil(t, o.CancelledAt)
}

func TestCancel_UserBlockedFromTransit(t *testing.T) {
	o := paidOrder()
	require.NoError(t, o.AdvanceFulfillment(StatusInTransit, time.Now()))

	err := o.Cancel(ActorUser, time.Now())
	var ite *IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusInTransit, o.Status)

	// Admin override still applies.
	require.NoError(t, o.Cancel(ActorAdmin, time.Now()))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "CANCELLED (Admin)", o.StatusHistory[len(o.StatusHistory)-1].Label)
}

func TestCancel_UnpaidClosesPayment(t *testing.T) {
	o := newTestOrder()

	require.NoError(t, o.Cancel(ActorUser, time.Now()))
	assert.Equal(t, PaymentCancelled, o.PaymentStatus)
	assert.Equal(t, RefundContextNone, o.RefundContext)
}

func TestCancel_TerminalAfterwards(t *testing.T) {
	o := paidOrder()
	require.NoError(t, o.Cancel(ActorAdmin, time.Now()))
	historyLen := len(o.StatusHistory)

	// Replay is a no-op, pipeline and returns are dead.
	require.NoError(t, o.Cancel(ActorAdmin, time.Now()))
	assert.Len(t, o.StatusHistory, historyLen)
	assert.Error(t, o.AdvanceFulfillment(StatusOrderPacked, time.Now()))
	assert.Error(t, o.RequestReturn(time.Now()))
}

func TestReturnFlow_FullPath(t *testing.T) {
	o := deliveredOrder()

	require.NoError(t, o.RequestReturn(time.Now()))
	assert.Equal(t, StatusReturnRequested, o.Status)
	assert.Equal(t, StepReturn, o.CurrentStep)

	require.NoError(t, o.ApproveReturn(time.Now()))
	assert.Equal(t, StatusReturnAccepted, o.Status)

	require.NoError(t, o.ReceiveReturn("inspected ok", time.Now()))
	assert.Equal(t, StatusReturnReceived, o.Status)
	assert.Equal(t, PaymentRefundInitiated, o.PaymentStatus)
	assert.Equal(t, RefundContextReturn, o.RefundContext)

	changed, err := o.MarkRefundProcessed("rfnd_9", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusReturned, o.Status)
	assert.Equal(t, PaymentRefundDone, o.PaymentStatus)
	require.NotNil(t, o.ReturnCompletedAt)
}

func TestReturnFlow_OnlyFromDelivered(t *testing.T) {
	o := paidOrder()
	err := o.RequestReturn(time.Now())
	assert.Error(t, err)
	assert.Equal(t, StatusOrderPlaced, o.Status)
}

func TestReturnFlow_Exclusivity(t *testing.T) {
	o := deliveredOrder()
	require.NoError(t, o.RequestReturn(time.Now()))

	// No pipeline moves, no plain cancel, no second request.
	assert.Error(t, o.AdvanceFulfillment(StatusOrderPacked, time.Now()))
	assert.Error(t, o.Cancel(ActorAdmin, time.Now()))
	assert.Error(t, o.RequestReturn(time.Now()))
	assert.Equal(t, StatusReturnRequested, o.Status)
}

func TestReturnFlow_RejectIsTerminal(t *testing.T) {
	o := deliveredOrder()
	require.NoError(t, o.RequestReturn(time.Now()))
	require.NoError(t, o.RejectReturn("worn item", time.Now()))

	assert.Equal(t, StatusReturnRejected, o.Status)
	assert.Equal(t, "worn item", o.AdminNotes)
	assert.True(t, o.Status.IsTerminal())

	// No reopening: neither a new request nor approval is legal.
	assert.Error(t, o.RequestReturn(time.Now()))
	assert.Error(t, o.ApproveReturn(time.Now()))
	assert.Error(t, o.AdvanceFulfillment(StatusOrderPacked, time.Now()))
}

func TestReturnFlow_ApproveOnlyFromRequested(t *testing.T) {
	o := deliveredOrder()
	assert.Error(t, o.ApproveReturn(time.Now()))
	assert.Error(t, o.ReceiveReturn("", time.Now()))
}

func TestMarkPaid_Idempotent(t *testing.T) {
	o := newTestOrder()

	changed, err := o.MarkPaid("pay_123", "sig", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, StatusOrderPlaced, o.Status)
	assert.Equal(t, 1, o.CurrentStep)
	historyLen := len(o.StatusHistory)

	changed, err = o.MarkPaid("pay_123", "sig", time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, o.StatusHistory, historyLen)
}

func TestMarkPaid_PaymentRefImmutable(t *testing.T) {
	o := paidOrder()
	_, err := o.MarkPaid("pay_other", "", time.Now())
	assert.ErrorIs(t, err, ErrPaymentRefImmutable)
	assert.Equal(t, "pay_123", o.GatewayPaymentRef)
}

func TestMarkPaid_NeverRegressesStep(t *testing.T) {
	o := paidOrder()
	require.NoError(t, o.AdvanceFulfillment(StatusOrderPacked, time.Now()))

	// Late capture replay with a different state path must not pull the
	// order back to step 1.
	o.PaymentStatus = PaymentAuthorized
	_, err := o.MarkPaid("pay_123", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, o.CurrentStep)
}

func TestMarkAuthorized_SkipsPaidOrders(t *testing.T) {
	o := paidOrder()
	assert.False(t, o.MarkAuthorized(time.Now()))
	assert.Equal(t, PaymentPaid, o.PaymentStatus)

	fresh := newTestOrder()
	assert.True(t, fresh.MarkAuthorized(time.Now()))
	assert.False(t, fresh.MarkAuthorized(time.Now()))
	assert.Equal(t, PaymentAuthorized, fresh.PaymentStatus)
	// Authorization never touches the fulfillment side.
	assert.Equal(t, StatusPending, fresh.Status)
}

func TestMarkPaymentFailed(t *testing.T) {
	o := newTestOrder()

	assert.True(t, o.MarkPaymentFailed("pay_bad", time.Now()))
	assert.Equal(t, PaymentFailed, o.PaymentStatus)
	assert.Equal(t, StatusPaymentFailed, o.Status)

	assert.False(t, o.MarkPaymentFailed("pay_bad", time.Now()))
}

func TestMarkPaymentFailed_NeverRegressesCapturedPayment(t *testing.T) {
	o := deliveredOrder()
	historyLen := len(o.StatusHistory)

	// A conflicting failure report after capture leaves the order untouched.
	assert.False(t, o.MarkPaymentFailed("pay_evil", time.Now()))
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, StatusDelivered, o.Status)
	assert.Empty(t, o.FailedPaymentRef)
	assert.Len(t, o.StatusHistory, historyLen)

	cancelled := newTestOrder()
	require.NoError(t, cancelled.Cancel(ActorUser, time.Now()))
	assert.False(t, cancelled.MarkPaymentFailed("pay_late", time.Now()))
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestMarkRefundProcessed_MissingContext(t *testing.T) {
	o := paidOrder()
	o.PaymentStatus = PaymentRefundInitiated

	changed, err := o.MarkRefundProcessed("rfnd_1", time.Now())
	assert.True(t, changed)
	assert.ErrorIs(t, err, ErrMissingRefundContext)
	// Money truth advances, order status is left for the operator.
	assert.Equal(t, PaymentRefundDone, o.PaymentStatus)
	assert.Equal(t, StatusOrderPlaced, o.Status)
}

func TestMarkRefundFailed_RequeuesThenParks(t *testing.T) {
	o := paidOrder()
	o.PaymentStatus = PaymentRefundInitiated
	o.RefundContext = RefundContextCancel

	assert.True(t, o.MarkRefundFailed("rfnd_1", time.Now()))
	assert.Equal(t, PaymentRefundRequested, o.PaymentStatus)

	// Replay with the same ref does nothing.
	assert.False(t, o.MarkRefundFailed("rfnd_1", time.Now()))

	o.PaymentStatus = PaymentRefundInitiated
	o.RefundRetryCount = MaxRefundRetries
	assert.True(t, o.MarkRefundFailed("rfnd_2", time.Now()))
	assert.Equal(t, PaymentRefundFailed, o.PaymentStatus)
}

func TestApplyPaymentEdit_Table(t *testing.T) {
	o := paidOrder()

	require.NoError(t, o.ApplyPaymentEdit(PaymentRefundInitiated, time.Now()))
	require.NoError(t, o.ApplyPaymentEdit(PaymentRefundDone, time.Now()))
	require.NotNil(t, o.RefundCompletedAt)

	// Anything outside the table names the rejected pair.
	err := o.ApplyPaymentEdit(PaymentPending, time.Now())
	var ite *IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, "REFUND_DONE", ite.From)
	assert.Equal(t, "PENDING", ite.To)
}

func TestApplyPaymentEdit_FromPendingRejected(t *testing.T) {
	o := newTestOrder()
	assert.Error(t, o.ApplyPaymentEdit(PaymentRefundDone, time.Now()))
	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestHistory_OneEntryPerAcceptedTransition(t *testing.T) {
	o := newTestOrder()
	_, err := o.MarkPaid("pay_1", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, o.AdvanceFulfillment(StatusOrderPacked, time.Now()))
	require.NoError(t, o.AdvanceFulfillment(StatusInTransit, time.Now()))

	// PENDING + ORDER_PLACED + ORDER_PACKED + IN_TRANSIT
	require.Len(t, o.StatusHistory, 4)
	for i := 1; i < len(o.StatusHistory); i++ {
		assert.False(t, o.StatusHistory[i].At.Before(o.StatusHistory[i-1].At))
	}
}

func TestStepIndex(t *testing.T) {
	assert.Equal(t, 0, StepIndex(StatusPending))
	assert.Equal(t, 5, StepIndex(StatusDelivered))
	assert.Equal(t, -1, StepIndex(StatusReturned))
	assert.True(t, IsReturnFlow(StatusReturnReceived))
	assert.False(t, IsReturnFlow(StatusDelivered))
}
