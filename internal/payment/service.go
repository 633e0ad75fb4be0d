// Package payment captures order payments at most once per payment id.
//
// Capture runs as a virtual object keyed by the payment id, so concurrent
// captures for the same payment serialize. The recorded outcome in object
// state and the claim row in the ledger together make a retried or replayed
// capture observe the first charge instead of issuing a second one.
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	restate "github.com/restatedev/sdk-go"

	"github.com/pithomlabs/orderflow/internal/backoff"
	"github.com/pithomlabs/orderflow/internal/store"
)

const stateKeyResult = "result"

// ServiceName is the name PaymentService registers under.
const ServiceName = "PaymentService"

// Handler names, for callers addressing the service.
const (
	CaptureHandler = "Capture"
	StatusHandler  = "Status"
)

// Capture outcomes.
const (
	StatusCaptured = "captured"
	StatusFailed   = "failed"
)

// chargeNamespace salts the reference derivation so references cannot
// collide with payment ids used elsewhere.
var chargeNamespace = uuid.MustParse("7b8a4a1e-4f80-4cb2-9d5e-3f2a6c1d9b42")

// CaptureRequest asks for a charge against the keyed payment id.
type CaptureRequest struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

// CaptureResult is the recorded outcome of a capture. A failed capture is a
// business outcome, returned without a handler error.
type CaptureResult struct {
	PaymentID string  `json:"payment_id"`
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Captured reports whether the charge settled.
func (r CaptureResult) Captured() bool {
	return r.Status == StatusCaptured
}

// Ledger is the payments table surface the capture path needs.
type Ledger interface {
	ClaimPayment(ctx context.Context, paymentID, orderID string, amount float64) (*store.Payment, bool, error)
	SetPaymentStatus(ctx context.Context, paymentID, status, reference string) error
}

var _ Ledger = (*store.Store)(nil)

// PaymentService captures payments as a virtual object keyed by payment id.
type PaymentService struct {
	ledger  Ledger
	gateway ChargeGateway
	retry   backoff.Policy
}

// NewPaymentService wires the capture handlers to a ledger and a gateway.
func NewPaymentService(ledger Ledger, gateway ChargeGateway, retry backoff.Policy) PaymentService {
	return PaymentService{ledger: ledger, gateway: gateway, retry: retry}
}

// chargeReference derives the idempotency key sent to the provider. The same
// payment id always maps to the same reference, so a charge retried across
// recoveries settles on the provider at most once.
func chargeReference(paymentID string) string {
	return "ch_" + uuid.NewSHA1(chargeNamespace, []byte(paymentID)).String()
}

// Capture charges the payment and records the outcome. Calling it again for
// a settled payment returns the recorded result without touching the
// provider.
func (s PaymentService) Capture(ctx restate.ObjectContext, req CaptureRequest) (CaptureResult, error) {
	paymentID := restate.Key(ctx)

	ctx.Log().Info("Capturing payment",
		"paymentId", paymentID,
		"orderId", req.OrderID,
		"amount", req.Amount)

	// State-based deduplication: a repeated capture returns the recorded
	// outcome.
	prior, err := restate.Get[*CaptureResult](ctx, stateKeyResult)
	if err != nil {
		return CaptureResult{}, err
	}
	if prior != nil {
		ctx.Log().Info("Payment already settled, returning recorded result",
			"paymentId", paymentID,
			"status", prior.Status)
		return *prior, nil
	}

	if req.OrderID == "" {
		return CaptureResult{}, restate.TerminalError(
			fmt.Errorf("order id is required"), 400)
	}
	if req.Amount <= 0 {
		return CaptureResult{}, restate.TerminalError(
			fmt.Errorf("invalid amount: must be positive"), 400)
	}

	// Claim the ledger row before charging. An earlier incarnation that
	// crashed after its charge left the row behind, and its status tells us
	// whether the money already moved.
	claim, err := restate.Run(ctx, func(rc restate.RunContext) (*store.Payment, error) {
		p, existed, claimErr := s.ledger.ClaimPayment(rc, paymentID, req.OrderID, req.Amount)
		if claimErr != nil {
			return nil, claimErr
		}
		if existed {
			rc.Log().Info("Found existing ledger row", "paymentId", paymentID, "status", p.Status)
		}
		return p, nil
	}, restate.WithName("claim payment"))
	if err != nil {
		return CaptureResult{}, err
	}

	if claim.Succeeded() {
		result := CaptureResult{
			PaymentID: paymentID,
			OrderID:   claim.OrderID,
			Status:    StatusCaptured,
			Amount:    claim.Amount,
			Reference: claim.Reference,
		}
		restate.Set(ctx, stateKeyResult, result)
		return result, nil
	}

	reference := chargeReference(paymentID)

	receipt, err := backoff.Run(ctx, s.retry, "charge payment", func(rc restate.RunContext) (ChargeReceipt, error) {
		return s.gateway.Charge(rc, ChargeRequest{
			PaymentID: paymentID,
			OrderID:   req.OrderID,
			Amount:    req.Amount,
			Reference: reference,
		})
	})
	if err != nil {
		ctx.Log().Warn("Charge did not settle",
			"paymentId", paymentID,
			"error", err)

		if mErr := s.markLedger(ctx, paymentID, store.PaymentStatusFailed, reference); mErr != nil {
			return CaptureResult{}, mErr
		}

		result := CaptureResult{
			PaymentID: paymentID,
			OrderID:   req.OrderID,
			Status:    StatusFailed,
			Amount:    req.Amount,
			Reason:    err.Error(),
		}
		restate.Set(ctx, stateKeyResult, result)
		return result, nil
	}

	if mErr := s.markLedger(ctx, paymentID, store.PaymentStatusSucceeded, receipt.Reference); mErr != nil {
		return CaptureResult{}, mErr
	}

	result := CaptureResult{
		PaymentID: paymentID,
		OrderID:   req.OrderID,
		Status:    StatusCaptured,
		Amount:    req.Amount,
		Reference: receipt.Reference,
	}
	restate.Set(ctx, stateKeyResult, result)

	ctx.Log().Info("Payment captured",
		"paymentId", paymentID,
		"reference", receipt.Reference)

	return result, nil
}

// Status returns the recorded capture outcome for the keyed payment.
func (s PaymentService) Status(ctx restate.ObjectSharedContext, _ restate.Void) (CaptureResult, error) {
	result, err := restate.Get[*CaptureResult](ctx, stateKeyResult)
	if err != nil {
		return CaptureResult{}, err
	}
	if result == nil {
		return CaptureResult{}, restate.TerminalError(
			fmt.Errorf("payment %s not found", restate.Key(ctx)), 404)
	}
	return *result, nil
}

// markLedger records the charge outcome on the claimed ledger row.
func (s PaymentService) markLedger(ctx restate.ObjectContext, paymentID, status, reference string) error {
	_, err := restate.Run(ctx, func(rc restate.RunContext) (restate.Void, error) {
		return restate.Void{}, s.ledger.SetPaymentStatus(rc, paymentID, status, reference)
	}, restate.WithName("mark payment "+status))
	if err != nil {
		return fmt.Errorf("payment: mark ledger %s: %w", status, err)
	}
	return nil
}
