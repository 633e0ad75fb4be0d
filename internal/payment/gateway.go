package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ChargeRequest describes one charge attempt against the provider.
type ChargeRequest struct {
	PaymentID string  `json:"payment_id"`
	OrderID   string  `json:"order_id"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"`
}

// ChargeReceipt is the provider's acknowledgement of a settled charge.
type ChargeReceipt struct {
	Reference string    `json:"reference"`
	Amount    float64   `json:"amount"`
	ChargedAt time.Time `json:"charged_at"`
}

// ChargeGateway charges payments on an external provider. Implementations
// must treat Reference as an idempotency key, so a retried charge with the
// same reference settles at most once.
type ChargeGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeReceipt, error)
}

// SimulatedGateway stands in for an external payment provider. It remembers
// references it has already settled and fails transiently at the configured
// rate, which is what exercises the retry path end to end.
type SimulatedGateway struct {
	FailureRate float64

	mu      sync.Mutex
	settled map[string]ChargeReceipt
}

// NewSimulatedGateway returns a gateway that fails the given fraction of
// first-time charges.
func NewSimulatedGateway(failureRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		FailureRate: failureRate,
		settled:     make(map[string]ChargeReceipt),
	}
}

// Charge settles the requested amount. A reference that was already settled
// returns the original receipt.
func (g *SimulatedGateway) Charge(_ context.Context, req ChargeRequest) (ChargeReceipt, error) {
	if req.Reference == "" {
		return ChargeReceipt{}, fmt.Errorf("gateway: reference is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if receipt, ok := g.settled[req.Reference]; ok {
		return receipt, nil
	}

	if rand.Float64() < g.FailureRate {
		return ChargeReceipt{}, fmt.Errorf("gateway: provider unavailable")
	}

	receipt := ChargeReceipt{
		Reference: req.Reference,
		Amount:    req.Amount,
		ChargedAt: time.Now(),
	}
	if g.settled == nil {
		g.settled = make(map[string]ChargeReceipt)
	}
	g.settled[req.Reference] = receipt
	return receipt, nil
}
