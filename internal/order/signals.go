package order

import (
	"fmt"

	restate "github.com/restatedev/sdk-go"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
	"github.com/pithomlabs/orderflow/internal/shipping"
)

// liveOrder loads the keyed order's projection for a signal handler.
func liveOrder(ctx restate.WorkflowSharedContext) (*lifecycle.Order, error) {
	o, err := restate.Get[*lifecycle.Order](ctx, stateKeyOrder)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, restate.TerminalError(
			fmt.Errorf("order %s not found", restate.Key(ctx)), 404)
	}
	return o, nil
}

// Approve resolves the approval gate. Arriving after the order has moved on
// is acknowledged as a no-op rather than an error.
func (w OrderLifecycle) Approve(ctx restate.WorkflowSharedContext, _ restate.Void) (SignalAck, error) {
	orderID := restate.Key(ctx)

	o, err := liveOrder(ctx)
	if err != nil {
		return SignalAck{}, err
	}

	if o.State.Terminal() {
		return SignalAck{OrderID: orderID, Accepted: false, State: o.State,
			Note: fmt.Sprintf("order is already %s", o.State)}, nil
	}
	if !approvalApplies(o.State) {
		return SignalAck{OrderID: orderID, Accepted: false, State: o.State,
			Note: "approval no longer applies"}, nil
	}

	if err := restate.Promise[bool](ctx, promiseNameApproval).Resolve(true); err != nil {
		ctx.Log().Info("Approval already decided", "orderId", orderID)
		return SignalAck{OrderID: orderID, Accepted: false, State: o.State,
			Note: "approval already decided"}, nil
	}

	ctx.Log().Info("Approval signal accepted", "orderId", orderID)
	return SignalAck{OrderID: orderID, Accepted: true, State: o.State}, nil
}

// Cancel requests cancellation. Run honors it at its next gate, so an
// in-flight step finishes before the order stops.
func (w OrderLifecycle) Cancel(ctx restate.WorkflowSharedContext, req CancelRequest) (SignalAck, error) {
	orderID := restate.Key(ctx)

	o, err := liveOrder(ctx)
	if err != nil {
		return SignalAck{}, err
	}

	if o.State.Terminal() {
		return SignalAck{OrderID: orderID, Accepted: false, State: o.State,
			Note: fmt.Sprintf("order is already %s", o.State)}, nil
	}

	if err := restate.Promise[CancelRequest](ctx, promiseNameCancel).Resolve(req); err != nil {
		return SignalAck{OrderID: orderID, Accepted: false, State: o.State,
			Note: "cancellation already requested"}, nil
	}

	ctx.Log().Info("Cancellation signal accepted", "orderId", orderID, "reason", req.Reason)
	return SignalAck{OrderID: orderID, Accepted: true, State: o.State}, nil
}

// UpdateAddress replaces the shipping address wholesale. It is rejected
// once the order is terminal; during Shipping it still lands, and the
// shipment reads the fresh destination if it has not dispatched yet.
func (w OrderLifecycle) UpdateAddress(ctx restate.WorkflowSharedContext, addr lifecycle.Address) (SignalAck, error) {
	orderID := restate.Key(ctx)

	o, err := liveOrder(ctx)
	if err != nil {
		return SignalAck{}, err
	}

	addr.Normalize()
	if err := addr.Validate(); err != nil {
		return SignalAck{}, restate.TerminalError(fmt.Errorf("invalid address: %w", err), 400)
	}

	if o.State.Terminal() {
		return SignalAck{}, restate.TerminalError(
			fmt.Errorf("order %s is %s and can no longer change address", orderID, o.State), 409)
	}

	// Run re-arms the promise under a new revision each time it consumes an
	// update. Losing this race a few times in a row means another update is
	// still pending.
	for attempt := 0; attempt < 3; attempt++ {
		rev, err := restate.Get[int](ctx, stateKeyAddressRev)
		if err != nil {
			return SignalAck{}, err
		}
		if restate.Promise[lifecycle.Address](ctx, addressPromiseName(rev)).Resolve(addr) == nil {
			ctx.Log().Info("Address update accepted", "orderId", orderID, "rev", rev)
			return SignalAck{OrderID: orderID, Accepted: true, State: o.State}, nil
		}
	}

	return SignalAck{}, restate.TerminalError(
		fmt.Errorf("an address update for order %s is still pending", orderID), 409)
}

// DispatchFailed is the shipment workflow's failure signal. It resolves the
// supervision promise Run races while Shipping.
func (w OrderLifecycle) DispatchFailed(ctx restate.WorkflowSharedContext, failure shipping.DispatchFailure) error {
	ctx.Log().Warn("Shipment reported dispatch failure",
		"orderId", failure.OrderID,
		"packageId", failure.PackageID,
		"reason", failure.Reason)

	if err := restate.Promise[shipping.DispatchFailure](ctx, promiseNameDispatchFailed).Resolve(failure); err != nil {
		ctx.Log().Info("Dispatch failure already recorded", "orderId", failure.OrderID)
	}
	return nil
}

// Status reads the live order without mutating it.
func (w OrderLifecycle) Status(ctx restate.WorkflowSharedContext, _ restate.Void) (StatusResponse, error) {
	o, err := liveOrder(ctx)
	if err != nil {
		return StatusResponse{}, err
	}

	return StatusResponse{
		OrderID:   o.ID,
		State:     o.State,
		Address:   o.Address,
		Items:     o.Items,
		UpdatedAt: o.UpdatedAt,
	}, nil
}
