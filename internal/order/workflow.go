// Package order drives one order from Received to a terminal state.
//
// The lifecycle runs as a workflow keyed by order id, so exactly one Run
// executes per order and every external signal addresses it by key. Forward
// progress happens at gates: durable races between the next internal step
// and the signals that may overtake it. Once a gate decides, the decision
// is journaled; replays never re-decide a race.
package order

import (
	"fmt"
	"time"

	restate "github.com/restatedev/sdk-go"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
	"github.com/pithomlabs/orderflow/internal/payment"
	"github.com/pithomlabs/orderflow/internal/shipping"
)

// DefaultApprovalTimeout is how long an order waits in AwaitingApproval
// before proceeding as implicitly approved.
const DefaultApprovalTimeout = 10 * time.Second

// OrderLifecycle is the order orchestrator workflow.
type OrderLifecycle struct {
	store           Store
	approvalTimeout time.Duration
}

// NewOrderLifecycle wires the orchestrator to its store. approvalTimeout
// bounds the approval wait; zero selects the default.
func NewOrderLifecycle(st Store, approvalTimeout time.Duration) OrderLifecycle {
	if approvalTimeout <= 0 {
		approvalTimeout = DefaultApprovalTimeout
	}
	return OrderLifecycle{store: st, approvalTimeout: approvalTimeout}
}

// Run executes the order lifecycle: validate, await approval, capture
// payment, supervise shipping. Signals (approve, cancel, address updates,
// the child's dispatch failure) are consumed at the gates between phases.
func (w OrderLifecycle) Run(ctx restate.WorkflowContext, req StartRequest) (Result, error) {
	orderID := restate.Key(ctx)

	if req.PaymentID == "" {
		return Result{}, restate.TerminalError(fmt.Errorf("payment id is required"), 400)
	}

	ctx.Log().Info("Order received",
		"orderId", orderID,
		"paymentId", req.PaymentID)

	// Received: create the durable record. rev tracks how many address
	// updates have been consumed; signal handlers resolve the promise named
	// after the current revision.
	rev := 0
	restate.Set(ctx, stateKeyAddressRev, rev)

	ord := lifecycle.NewOrder(orderID, req.Items, req.Address)
	o := &ord
	if err := w.flush(ctx, o); err != nil {
		return Result{}, err
	}
	if err := w.appendEvent(ctx, o, lifecycle.EventOrderReceived, map[string]any{
		"payment_id": req.PaymentID,
	}); err != nil {
		return Result{}, err
	}

	cancelP := restate.Promise[CancelRequest](ctx, promiseNameCancel)

	// Validating: synchronous, no suspension before the approval gate. A
	// cancel arriving here is observed at that gate.
	if err := w.advance(ctx, o, lifecycle.StateValidating, "", nil); err != nil {
		return Result{}, err
	}

	if err := lifecycle.ValidateItems(o.Items); err != nil {
		ctx.Log().Warn("Order validation failed", "orderId", orderID, "error", err)
		return w.fail(ctx, o, "invalid items: "+err.Error())
	}

	if err := w.advance(ctx, o, lifecycle.StateAwaitingApproval, lifecycle.EventOrderValidated, nil); err != nil {
		return Result{}, err
	}

	// AwaitingApproval: race approve, cancel, address updates, and the
	// timeout. The timer is created once; consuming an address update loops
	// back into the same gate.
	approvalP := restate.Promise[bool](ctx, promiseNameApproval)
	timeoutFut := restate.After(ctx, w.approvalTimeout)

	ctx.Log().Info("Awaiting approval", "orderId", orderID, "timeout", w.approvalTimeout)

	for o.State == lifecycle.StateAwaitingApproval {
		addrP := restate.Promise[lifecycle.Address](ctx, addressPromiseName(rev))

		winner, err := restate.WaitFirst(ctx, approvalP, cancelP, addrP, timeoutFut)
		if err != nil {
			return Result{}, fmt.Errorf("awaiting approval: %w", err)
		}

		switch winner {
		case approvalP:
			if _, err := approvalP.Result(); err != nil {
				return Result{}, fmt.Errorf("approval promise: %w", err)
			}
			ctx.Log().Info("Order approved", "orderId", orderID)
			if err := w.advance(ctx, o, lifecycle.StatePaymentPending, lifecycle.EventOrderApproved, map[string]any{
				"source": "signal",
			}); err != nil {
				return Result{}, err
			}

		case timeoutFut:
			ctx.Log().Info("Approval window elapsed, proceeding as approved", "orderId", orderID)
			if err := w.advance(ctx, o, lifecycle.StatePaymentPending, lifecycle.EventApprovalTimeout, map[string]any{
				"timeout": w.approvalTimeout.String(),
			}); err != nil {
				return Result{}, err
			}

		case cancelP:
			cancelReq, cErr := cancelP.Result()
			if cErr != nil {
				return Result{}, fmt.Errorf("cancel promise: %w", cErr)
			}
			return w.cancel(ctx, o, cancelReq.Reason)

		case addrP:
			addr, aErr := addrP.Result()
			if aErr != nil {
				return Result{}, fmt.Errorf("address promise: %w", aErr)
			}
			rev++
			if err := w.recordAddress(ctx, o, addr, rev); err != nil {
				return Result{}, err
			}
		}
	}

	// PaymentPending: the capture is keyed by the payment id, so however
	// often this workflow retries, the charge settles at most once. Cancel
	// and address updates are still honored while the capture is in flight.
	amount := lifecycle.Amount(o.Items)
	capFut := restate.Object[payment.CaptureResult](ctx, payment.ServiceName, req.PaymentID, payment.CaptureHandler).
		RequestFuture(payment.CaptureRequest{OrderID: orderID, Amount: amount})

	ctx.Log().Info("Capturing payment", "orderId", orderID, "paymentId", req.PaymentID, "amount", amount)

	var capture payment.CaptureResult
	for captured := false; !captured; {
		addrP := restate.Promise[lifecycle.Address](ctx, addressPromiseName(rev))

		winner, err := restate.WaitFirst(ctx, capFut, cancelP, addrP)
		if err != nil {
			return Result{}, fmt.Errorf("awaiting capture: %w", err)
		}

		switch winner {
		case capFut:
			capture, err = capFut.Response()
			if err != nil {
				ctx.Log().Warn("Capture errored", "orderId", orderID, "error", err)
				if evErr := w.appendEvent(ctx, o, lifecycle.EventPaymentFailed, map[string]any{
					"payment_id": req.PaymentID,
					"reason":     err.Error(),
				}); evErr != nil {
					return Result{}, evErr
				}
				return w.fail(ctx, o, "payment capture: "+err.Error())
			}
			captured = true

		case cancelP:
			cancelReq, cErr := cancelP.Result()
			if cErr != nil {
				return Result{}, fmt.Errorf("cancel promise: %w", cErr)
			}

			// The dispatched capture finishes and its outcome is recorded;
			// only then does the cancellation land. Nothing starts after it.
			ctx.Log().Info("Cancel requested during capture, awaiting outcome", "orderId", orderID)
			if capture, err = capFut.Response(); err != nil {
				if evErr := w.appendEvent(ctx, o, lifecycle.EventPaymentFailed, map[string]any{
					"payment_id": req.PaymentID,
					"reason":     err.Error(),
				}); evErr != nil {
					return Result{}, evErr
				}
			} else if err := w.recordCapture(ctx, o, capture); err != nil {
				return Result{}, err
			}
			return w.cancel(ctx, o, cancelReq.Reason)

		case addrP:
			addr, aErr := addrP.Result()
			if aErr != nil {
				return Result{}, fmt.Errorf("address promise: %w", aErr)
			}
			rev++
			if err := w.recordAddress(ctx, o, addr, rev); err != nil {
				return Result{}, err
			}
		}
	}

	if err := w.recordCapture(ctx, o, capture); err != nil {
		return Result{}, err
	}
	if !capture.Captured() {
		return w.fail(ctx, o, "payment failed: "+capture.Reason)
	}

	// Shipping: hand the order to the shipment workflow on the shipping
	// worker and supervise it. The child reports giving up on a carrier
	// through the DispatchFailed signal; everything else arrives on its
	// result future.
	if err := w.advance(ctx, o, lifecycle.StateShipping, "", nil); err != nil {
		return Result{}, err
	}

	dispatchFailedP := restate.Promise[shipping.DispatchFailure](ctx, promiseNameDispatchFailed)
	shipFut := restate.Workflow[shipping.Result](ctx, shipping.ServiceName, shipmentID(orderID), shipping.RunHandler).
		RequestFuture(shipping.Request{OrderID: orderID})

	ctx.Log().Info("Shipment started", "orderId", orderID, "shipmentId", shipmentID(orderID))

	for {
		addrP := restate.Promise[lifecycle.Address](ctx, addressPromiseName(rev))

		winner, err := restate.WaitFirst(ctx, shipFut, dispatchFailedP, cancelP, addrP)
		if err != nil {
			return Result{}, fmt.Errorf("awaiting shipment: %w", err)
		}

		switch winner {
		case shipFut:
			shipped, sErr := shipFut.Response()
			if sErr != nil {
				ctx.Log().Warn("Shipment workflow failed", "orderId", orderID, "error", sErr)
				return w.fail(ctx, o, "shipping: "+sErr.Error())
			}
			if err := w.advance(ctx, o, lifecycle.StateCompleted, lifecycle.EventOrderCompleted, map[string]any{
				"tracking_id": shipped.TrackingID,
				"carrier":     shipped.Carrier,
			}); err != nil {
				return Result{}, err
			}
			ctx.Log().Info("Order completed", "orderId", orderID, "trackingId", shipped.TrackingID)
			return Result{OrderID: orderID, State: lifecycle.StateCompleted, TrackingID: shipped.TrackingID}, nil

		case dispatchFailedP:
			failure, fErr := dispatchFailedP.Result()
			if fErr != nil {
				return Result{}, fmt.Errorf("dispatch-failed promise: %w", fErr)
			}
			return w.fail(ctx, o, "carrier dispatch: "+failure.Reason)

		case cancelP:
			cancelReq, cErr := cancelP.Result()
			if cErr != nil {
				return Result{}, fmt.Errorf("cancel promise: %w", cErr)
			}
			ctx.Log().Info("Cancel requested during shipping", "orderId", orderID)
			return w.cancel(ctx, o, cancelReq.Reason)

		case addrP:
			addr, aErr := addrP.Result()
			if aErr != nil {
				return Result{}, fmt.Errorf("address promise: %w", aErr)
			}
			rev++
			if err := w.recordAddress(ctx, o, addr, rev); err != nil {
				return Result{}, err
			}
		}
	}
}

// flush mirrors the in-process order into workflow state and the database
// row. The in-process copy wins over whatever the row held.
func (w OrderLifecycle) flush(ctx restate.WorkflowContext, o *lifecycle.Order) error {
	o.UpdatedAt = time.Now()
	restate.Set(ctx, stateKeyOrder, o)

	_, err := restate.Run(ctx, func(rc restate.RunContext) (restate.Void, error) {
		return restate.Void{}, w.store.SaveOrder(rc, o)
	}, restate.WithName("save order"))
	if err != nil {
		return fmt.Errorf("order: save %s: %w", o.ID, err)
	}
	return nil
}

// appendEvent writes one audit record. The log is write-only here; control
// flow never reads it back.
func (w OrderLifecycle) appendEvent(ctx restate.WorkflowContext, o *lifecycle.Order, eventType string, payload map[string]any) error {
	_, err := restate.Run(ctx, func(rc restate.RunContext) (restate.Void, error) {
		return restate.Void{}, w.store.AppendEvent(rc, o.ID, eventType, payload)
	}, restate.WithName("event "+eventType))
	if err != nil {
		return fmt.Errorf("order: record %s: %w", eventType, err)
	}
	return nil
}

// advance moves the order to the next state, flushes the projection, and
// records the event when one is named.
func (w OrderLifecycle) advance(ctx restate.WorkflowContext, o *lifecycle.Order, to lifecycle.State, eventType string, payload map[string]any) error {
	if err := o.TransitionTo(to); err != nil {
		return restate.TerminalError(err, 409)
	}
	ctx.Log().Info("Order state changed", "orderId", o.ID, "state", to)

	if err := w.flush(ctx, o); err != nil {
		return err
	}
	if eventType != "" {
		return w.appendEvent(ctx, o, eventType, payload)
	}
	return nil
}

// recordAddress applies a consumed address update under its new revision
// and re-arms the promise for the next one.
func (w OrderLifecycle) recordAddress(ctx restate.WorkflowContext, o *lifecycle.Order, addr lifecycle.Address, rev int) error {
	o.SetAddress(addr)
	restate.Set(ctx, stateKeyAddressRev, rev)

	ctx.Log().Info("Shipping address replaced", "orderId", o.ID, "rev", rev)

	if err := w.flush(ctx, o); err != nil {
		return err
	}
	return w.appendEvent(ctx, o, lifecycle.EventAddressUpdated, map[string]any{
		"street":   addr.Street,
		"city":     addr.City,
		"state":    addr.State,
		"zip_code": addr.ZipCode,
		"country":  addr.Country,
	})
}

// recordCapture logs the capture outcome on the audit trail.
func (w OrderLifecycle) recordCapture(ctx restate.WorkflowContext, o *lifecycle.Order, capture payment.CaptureResult) error {
	if capture.Captured() {
		return w.appendEvent(ctx, o, lifecycle.EventPaymentCaptured, map[string]any{
			"payment_id": capture.PaymentID,
			"amount":     capture.Amount,
			"reference":  capture.Reference,
		})
	}
	return w.appendEvent(ctx, o, lifecycle.EventPaymentFailed, map[string]any{
		"payment_id": capture.PaymentID,
		"reason":     capture.Reason,
	})
}

// cancel finalizes the order as Cancelled. Work that already settled stays
// settled; nothing new starts afterward.
func (w OrderLifecycle) cancel(ctx restate.WorkflowContext, o *lifecycle.Order, reason string) (Result, error) {
	payload := map[string]any{}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := w.advance(ctx, o, lifecycle.StateCancelled, lifecycle.EventOrderCancelled, payload); err != nil {
		return Result{}, err
	}
	ctx.Log().Info("Order cancelled", "orderId", o.ID, "reason", reason)
	return Result{OrderID: o.ID, State: lifecycle.StateCancelled, Reason: reason}, nil
}

// fail finalizes the order as Failed with the given reason.
func (w OrderLifecycle) fail(ctx restate.WorkflowContext, o *lifecycle.Order, reason string) (Result, error) {
	if err := w.advance(ctx, o, lifecycle.StateFailed, lifecycle.EventOrderFailed, map[string]any{
		"reason": reason,
	}); err != nil {
		return Result{}, err
	}
	ctx.Log().Warn("Order failed", "orderId", o.ID, "reason", reason)
	return Result{OrderID: o.ID, State: lifecycle.StateFailed, Reason: reason}, nil
}
