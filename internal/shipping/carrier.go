package shipping

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
)

// DispatchRequest asks a carrier to pick up one package.
type DispatchRequest struct {
	OrderID     string            `json:"order_id"`
	PackageID   string            `json:"package_id"`
	Destination lifecycle.Address `json:"destination"`
}

// DispatchReceipt identifies the shipment on the carrier's side.
type DispatchReceipt struct {
	TrackingID string `json:"tracking_id"`
	Carrier    string `json:"carrier"`
}

// CarrierClient books pickups with an external carrier.
type CarrierClient interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchReceipt, error)
}

// SimulatedCarrier stands in for a carrier API. It rejects the configured
// fraction of dispatch calls, which is what exercises the retry and
// dispatch-failed paths end to end.
type SimulatedCarrier struct {
	FailureRate float64
}

// NewSimulatedCarrier returns a carrier that rejects the given fraction of
// dispatch calls.
func NewSimulatedCarrier(failureRate float64) *SimulatedCarrier {
	return &SimulatedCarrier{FailureRate: failureRate}
}

// Dispatch books a pickup and returns the tracking id.
func (c *SimulatedCarrier) Dispatch(_ context.Context, req DispatchRequest) (DispatchReceipt, error) {
	if req.PackageID == "" {
		return DispatchReceipt{}, fmt.Errorf("carrier: package id is required")
	}
	if rand.Float64() < c.FailureRate {
		return DispatchReceipt{}, fmt.Errorf("carrier: no trucks available")
	}

	return DispatchReceipt{
		TrackingID: fmt.Sprintf("trk_%s_%d", req.PackageID, time.Now().Unix()),
		Carrier:    "simulated-express",
	}, nil
}
