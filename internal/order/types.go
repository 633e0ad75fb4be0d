package order

import (
	"context"
	"fmt"
	"time"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
)

// ServiceName is the name OrderLifecycle registers under.
const ServiceName = "OrderLifecycle"

// Handler names, for callers addressing the workflow through ingress.
const (
	RunHandler           = "Run"
	ApproveHandler       = "Approve"
	CancelHandler        = "Cancel"
	UpdateAddressHandler = "UpdateAddress"
	StatusHandler        = "Status"
)

// Workflow state keys.
const (
	stateKeyOrder      = "order"
	stateKeyAddressRev = "addressRev"
)

// Durable promises the Run handler races at its gates.
const (
	promiseNameApproval       = "approval"
	promiseNameCancel         = "cancel"
	promiseNameDispatchFailed = "dispatch-failed"
)

// addressPromiseName names the promise the next address update resolves.
// Run bumps the revision each time it consumes an update, which re-arms the
// signal for the rest of the lifecycle.
func addressPromiseName(rev int) string {
	return fmt.Sprintf("address-update/%d", rev)
}

// shipmentID derives the child workflow id for an order's shipment.
func shipmentID(orderID string) string {
	return "ship-" + orderID
}

// StartRequest begins the lifecycle for the keyed order. PaymentID is the
// caller-supplied idempotency key for the later capture. Items and Address
// are optional; missing items fall back to a single default line.
type StartRequest struct {
	PaymentID string             `json:"payment_id"`
	Items     []lifecycle.Item   `json:"items,omitempty"`
	Address   *lifecycle.Address `json:"address,omitempty"`
}

// CancelRequest carries the optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SignalAck reports how a signal landed: accepted and applied, or ignored
// because the order had already moved past it.
type SignalAck struct {
	OrderID  string          `json:"order_id"`
	Accepted bool            `json:"accepted"`
	State    lifecycle.State `json:"state"`
	Note     string          `json:"note,omitempty"`
}

// StatusResponse is the live view of one order.
type StatusResponse struct {
	OrderID   string            `json:"order_id"`
	State     lifecycle.State   `json:"state"`
	Address   lifecycle.Address `json:"address"`
	Items     []lifecycle.Item  `json:"items"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Result summarizes a finished lifecycle.
type Result struct {
	OrderID    string          `json:"order_id"`
	State      lifecycle.State `json:"state"`
	TrackingID string          `json:"tracking_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Store is the database surface the orchestrator flushes to.
type Store interface {
	SaveOrder(ctx context.Context, o *lifecycle.Order) error
	AppendEvent(ctx context.Context, orderID, eventType string, payload map[string]any) error
}

// approvalApplies reports whether an approval signal can still influence
// the order. Signals arriving before the approval gate are buffered by the
// promise; signals arriving after it are stale.
func approvalApplies(s lifecycle.State) bool {
	switch s {
	case lifecycle.StateReceived, lifecycle.StateValidating, lifecycle.StateAwaitingApproval:
		return true
	default:
		return false
	}
}
