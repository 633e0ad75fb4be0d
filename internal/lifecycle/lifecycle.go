// Package lifecycle defines the order domain: the lifecycle states, the legal
// transition graph, and the order projection the orchestrator maintains.
package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// State is an order's position in the lifecycle graph.
type State string

const (
	StateReceived         State = "Received"
	StateValidating       State = "Validating"
	StateAwaitingApproval State = "AwaitingApproval"
	StatePaymentPending   State = "PaymentPending"
	StateShipping         State = "Shipping"
	StateCompleted        State = "Completed"
	StateCancelled        State = "Cancelled"
	StateFailed           State = "Failed"
)

// ErrIllegalTransition is returned when an order is asked to move along an
// edge the graph does not contain.
var ErrIllegalTransition = errors.New("illegal state transition")

// forward holds the happy-path edges. Cancelled and Failed are additionally
// reachable from every non-terminal state (see CanTransition).
var forward = map[State]State{
	StateReceived:         StateValidating,
	StateValidating:       StateAwaitingApproval,
	StateAwaitingApproval: StatePaymentPending,
	StatePaymentPending:   StateShipping,
	StateShipping:         StateCompleted,
}

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateReceived, StateValidating, StateAwaitingApproval,
		StatePaymentPending, StateShipping,
		StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge. Terminal states
// have no outgoing edges; every non-terminal state may move to Cancelled or
// Failed.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StateCancelled || to == StateFailed {
		return true
	}
	return forward[from] == to
}

// DefaultCountry is applied when an address arrives without one.
const DefaultCountry = "US"

// Address is the shipping destination, replaceable wholesale until the order
// reaches a terminal state.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// Empty reports whether every field is blank.
func (a Address) Empty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.ZipCode == "" && a.Country == ""
}

// Normalize fills in the country default.
func (a *Address) Normalize() {
	if a.Country == "" {
		a.Country = DefaultCountry
	}
}

// Validate rejects addresses missing the fields a carrier needs.
func (a Address) Validate() error {
	if a.Street == "" {
		return errors.New("address: street is required")
	}
	if a.City == "" {
		return errors.New("address: city is required")
	}
	if a.ZipCode == "" {
		return errors.New("address: zip_code is required")
	}
	return nil
}

// Item is one order line. A zero unit price is charged at one currency unit
// so quantity-only orders stay billable.
type Item struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

// DefaultItems is the item list used when a start request carries none.
func DefaultItems() []Item {
	return []Item{{SKU: "DEFAULT", Quantity: 1, UnitPrice: 1.0}}
}

// Amount returns the capture amount for the items.
func Amount(items []Item) float64 {
	var total float64
	for _, it := range items {
		price := it.UnitPrice
		if price == 0 {
			price = 1.0
		}
		total += float64(it.Quantity) * price
	}
	return total
}

// ValidateItems rejects empty lists, non-positive quantities and negative
// prices. Items are immutable after validation.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return errors.New("order has no items")
	}
	for i, it := range items {
		if it.SKU == "" {
			return fmt.Errorf("item %d: sku is required", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("item %d (%s): quantity must be positive", i, it.SKU)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("item %d (%s): unit price cannot be negative", i, it.SKU)
		}
	}
	return nil
}

// Order is the durable projection of one order. The orchestrator's in-process
// copy is the source of truth; the projection is re-flushed on every change
// and never read back to drive control flow.
type Order struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Address   Address   `json:"address"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrder builds a Received order, applying item and country defaults.
func NewOrder(id string, items []Item, addr *Address) Order {
	if len(items) == 0 {
		items = DefaultItems()
	}
	var a Address
	if addr != nil {
		a = *addr
	}
	if !a.Empty() {
		a.Normalize()
	}
	now := time.Now()
	return Order{
		ID:        id,
		State:     StateReceived,
		Address:   a,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the order along the graph, rejecting illegal edges.
func (o *Order) TransitionTo(to State) error {
	if !CanTransition(o.State, to) {
		return fmt.Errorf("lifecycle: %s -> %s: %w", o.State, to, ErrIllegalTransition)
	}
	o.State = to
	o.UpdatedAt = time.Now()
	return nil
}

// SetAddress replaces the shipping address wholesale.
func (o *Order) SetAddress(a Address) {
	a.Normalize()
	o.Address = a
	o.UpdatedAt = time.Now()
}

// Event tags recorded in the append-only event log.
const (
	EventOrderReceived     = "order_received"
	EventOrderValidated    = "order_validated"
	EventOrderApproved     = "order_approved"
	EventApprovalTimeout   = "approval_timeout"
	EventOrderCancelled    = "order_cancelled"
	EventPaymentCaptured   = "payment_captured"
	EventPaymentFailed     = "payment_failed"
	EventAddressUpdated    = "address_updated"
	EventPackagePrepared   = "package_prepared"
	EventCarrierDispatched = "carrier_dispatched"
	EventOrderShipped      = "order_shipped"
	EventShippingFailed    = "shipping_failed"
	EventOrderFailed       = "order_failed"
	EventOrderCompleted    = "order_completed"
)
