// Package shipping runs the shipment process for one order: prepare the
// package, dispatch a carrier, ship. It is bound on its own worker, so
// shipments queue and scale separately from order orchestration.
package shipping

import (
	"context"
	"errors"
	"fmt"

	restate "github.com/restatedev/sdk-go"

	"github.com/pithomlabs/orderflow/internal/backoff"
	"github.com/pithomlabs/orderflow/internal/lifecycle"
	"github.com/pithomlabs/orderflow/internal/store"
)

// ServiceName is the name ShipmentProcess registers under; the order
// workflow addresses shipments with it.
const ServiceName = "ShipmentProcess"

// RunHandler is the shipment entry point handler name.
const RunHandler = "Run"

// The order workflow's side of the dispatch-failed signal. Named locally so
// the two packages do not import each other.
const (
	orderService               = "OrderLifecycle"
	orderDispatchFailedHandler = "DispatchFailed"
)

// Request starts a shipment for an order.
type Request struct {
	OrderID string `json:"order_id"`
}

// Result reports a completed shipment back to the order workflow.
type Result struct {
	OrderID    string `json:"order_id"`
	PackageID  string `json:"package_id"`
	TrackingID string `json:"tracking_id"`
	Carrier    string `json:"carrier"`
}

// DispatchFailure tells the order workflow that no carrier could be booked
// for the package.
type DispatchFailure struct {
	OrderID   string `json:"order_id"`
	PackageID string `json:"package_id"`
	Reason    string `json:"reason"`
}

// Store is the database surface the shipment steps need.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (*lifecycle.Order, error)
	AppendEvent(ctx context.Context, orderID, eventType string, payload map[string]any) error
}

var _ Store = (*store.Store)(nil)

// ShipmentProcess is the shipment workflow, keyed by shipment id.
type ShipmentProcess struct {
	store   Store
	carrier CarrierClient
	retry   backoff.Policy
}

// NewShipmentProcess wires the shipment workflow to its store and carrier.
func NewShipmentProcess(st Store, carrier CarrierClient, retry backoff.Policy) ShipmentProcess {
	return ShipmentProcess{store: st, carrier: carrier, retry: retry}
}

// Run moves one shipment through PreparePackage, DispatchCarrier, and
// ShipOrder. The destination is re-read from the order record right before
// dispatch, so an address updated while the shipment was queued still wins.
// The order record itself is never written here; the order workflow owns it.
func (s ShipmentProcess) Run(ctx restate.WorkflowContext, req Request) (Result, error) {
	if req.OrderID == "" {
		return Result{}, restate.TerminalError(fmt.Errorf("order id is required"), 400)
	}

	shipmentID := restate.Key(ctx)
	ctx.Log().Info("Shipment started", "shipmentId", shipmentID, "orderId", req.OrderID)

	// Step 1: PreparePackage.
	packageID := fmt.Sprintf("pkg_%s", restate.UUID(ctx).String()[:8])

	_, err := restate.Run(ctx, func(rc restate.RunContext) (restate.Void, error) {
		return restate.Void{}, s.store.AppendEvent(rc, req.OrderID, lifecycle.EventPackagePrepared, map[string]any{
			"shipment_id": shipmentID,
			"package_id":  packageID,
		})
	}, restate.WithName("prepare package"))
	if err != nil {
		return Result{}, err
	}

	ctx.Log().Info("Package prepared", "packageId", packageID)

	// Step 2: DispatchCarrier. The destination comes from the order record,
	// not from the start request.
	order, err := restate.Run(ctx, func(rc restate.RunContext) (*lifecycle.Order, error) {
		o, getErr := s.store.GetOrder(rc, req.OrderID)
		if errors.Is(getErr, store.ErrOrderNotFound) {
			return nil, restate.TerminalError(fmt.Errorf("order %s not found", req.OrderID), 404)
		}
		return o, getErr
	}, restate.WithName("load destination"))
	if err != nil {
		return Result{}, err
	}

	receipt, err := backoff.Run(ctx, s.retry, "dispatch carrier", func(rc restate.RunContext) (DispatchReceipt, error) {
		return s.carrier.Dispatch(rc, DispatchRequest{
			OrderID:     req.OrderID,
			PackageID:   packageID,
			Destination: order.Address,
		})
	})
	if err != nil {
		return Result{}, s.failDispatch(ctx, shipmentID, req.OrderID, packageID, err)
	}

	ctx.Log().Info("Carrier dispatched",
		"orderId", req.OrderID,
		"trackingId", receipt.TrackingID,
		"carrier", receipt.Carrier)

	_, err = restate.Run(ctx, func(rc restate.RunContext) (restate.Void, error) {
		return restate.Void{}, s.store.AppendEvent(rc, req.OrderID, lifecycle.EventCarrierDispatched, map[string]any{
			"shipment_id": shipmentID,
			"package_id":  packageID,
			"tracking_id": receipt.TrackingID,
			"carrier":     receipt.Carrier,
		})
	}, restate.WithName("record dispatch"))
	if err != nil {
		return Result{}, err
	}

	// Step 3: ShipOrder.
	_, err = restate.Run(ctx, func(rc restate.RunContext) (restate.Void, error) {
		return restate.Void{}, s.store.AppendEvent(rc, req.OrderID, lifecycle.EventOrderShipped, map[string]any{
			"shipment_id": shipmentID,
			"package_id":  packageID,
			"tracking_id": receipt.TrackingID,
			"carrier":     receipt.Carrier,
		})
	}, restate.WithName("ship order"))
	if err != nil {
		return Result{}, err
	}

	ctx.Log().Info("Shipment complete", "orderId", req.OrderID, "trackingId", receipt.TrackingID)

	return Result{
		OrderID:    req.OrderID,
		PackageID:  packageID,
		TrackingID: receipt.TrackingID,
		Carrier:    receipt.Carrier,
	}, nil
}

// failDispatch signals the order workflow that dispatch gave up, records the
// failure, and converts it into a terminal error for this workflow.
func (s ShipmentProcess) failDispatch(ctx restate.WorkflowContext, shipmentID, orderID, packageID string, cause error) error {
	ctx.Log().Warn("Carrier dispatch failed",
		"orderId", orderID,
		"packageId", packageID,
		"error", cause)

	failure := DispatchFailure{
		OrderID:   orderID,
		PackageID: packageID,
		Reason:    cause.Error(),
	}
	restate.WorkflowSend(ctx, orderService, orderID, orderDispatchFailedHandler).Send(failure)

	_, err := restate.Run(ctx, func(rc restate.RunContext) (restate.Void, error) {
		return restate.Void{}, s.store.AppendEvent(rc, orderID, lifecycle.EventShippingFailed, map[string]any{
			"shipment_id": shipmentID,
			"package_id":  packageID,
			"reason":      failure.Reason,
		})
	}, restate.WithName("record dispatch failure"))
	if err != nil {
		return err
	}

	return restate.TerminalError(fmt.Errorf("carrier dispatch failed: %v", cause), 500)
}
