package gateway

import (
	"context"
	"fmt"

	restate "github.com/restatedev/sdk-go"
	restateingress "github.com/restatedev/sdk-go/ingress"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
	"github.com/pithomlabs/orderflow/internal/order"
)

// RestateOrchestrator reaches the order workflows through the Restate
// ingress endpoint.
type RestateOrchestrator struct {
	client *restateingress.Client
}

var _ Orchestrator = (*RestateOrchestrator)(nil)

// NewRestateOrchestrator creates a client for the given ingress URL.
func NewRestateOrchestrator(ingressURL string) *RestateOrchestrator {
	return &RestateOrchestrator{client: restateingress.NewClient(ingressURL)}
}

// StartOrder submits the workflow without waiting for it to finish.
func (c *RestateOrchestrator) StartOrder(ctx context.Context, orderID string, req order.StartRequest) error {
	_, err := restateingress.WorkflowSend[order.StartRequest](c.client, order.ServiceName, orderID, order.RunHandler).
		Send(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}

func (c *RestateOrchestrator) Approve(ctx context.Context, orderID string) (order.SignalAck, error) {
	ack, err := restateingress.Workflow[restate.Void, order.SignalAck](c.client, order.ServiceName, orderID, order.ApproveHandler).
		Request(ctx, restate.Void{})
	if err != nil {
		return order.SignalAck{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return ack, nil
}

func (c *RestateOrchestrator) Cancel(ctx context.Context, orderID string, req order.CancelRequest) (order.SignalAck, error) {
	ack, err := restateingress.Workflow[order.CancelRequest, order.SignalAck](c.client, order.ServiceName, orderID, order.CancelHandler).
		Request(ctx, req)
	if err != nil {
		return order.SignalAck{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return ack, nil
}

func (c *RestateOrchestrator) UpdateAddress(ctx context.Context, orderID string, addr lifecycle.Address) (order.SignalAck, error) {
	ack, err := restateingress.Workflow[lifecycle.Address, order.SignalAck](c.client, order.ServiceName, orderID, order.UpdateAddressHandler).
		Request(ctx, addr)
	if err != nil {
		return order.SignalAck{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return ack, nil
}

func (c *RestateOrchestrator) Status(ctx context.Context, orderID string) (order.StatusResponse, error) {
	status, err := restateingress.Workflow[restate.Void, order.StatusResponse](c.client, order.ServiceName, orderID, order.StatusHandler).
		Request(ctx, restate.Void{})
	if err != nil {
		return order.StatusResponse{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return status, nil
}
