package store

import "time"

// Payment ledger statuses.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment is a row in the payments ledger. One row exists per payment id;
// the capture handler claims the row before charging so that a replayed
// capture finds the claim instead of charging twice.
type Payment struct {
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Succeeded reports whether the ledger row records a completed charge.
func (p *Payment) Succeeded() bool {
	return p.Status == PaymentStatusSucceeded
}

// Event is an append-only audit record for an order.
type Event struct {
	ID        int64          `json:"id"`
	OrderID   string         `json:"order_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	TS        time.Time      `json:"ts"`
}
