package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []State{
		StateReceived,
		StateValidating,
		StateAwaitingApproval,
		StatePaymentPending,
		StateShipping,
		StateCompleted,
	}

	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]),
			"expected %s -> %s to be legal", path[i], path[i+1])
	}
}

func TestCanTransition_NoSkipping(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"received straight to approval", StateReceived, StateAwaitingApproval},
		{"received straight to payment", StateReceived, StatePaymentPending},
		{"validating straight to shipping", StateValidating, StateShipping},
		{"approval straight to completed", StateAwaitingApproval, StateCompleted},
		{"backwards", StateShipping, StateValidating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_TerminalStatesHaveNoExits(t *testing.T) {
	terminals := []State{StateCompleted, StateCancelled, StateFailed}
	all := []State{
		StateReceived, StateValidating, StateAwaitingApproval,
		StatePaymentPending, StateShipping,
		StateCompleted, StateCancelled, StateFailed,
	}

	for _, from := range terminals {
		for _, to := range all {
			assert.False(t, CanTransition(from, to),
				"terminal state %s must not transition to %s", from, to)
		}
	}
}

func TestCanTransition_CancelAndFailFromAnyNonTerminal(t *testing.T) {
	nonTerminals := []State{
		StateReceived, StateValidating, StateAwaitingApproval,
		StatePaymentPending, StateShipping,
	}

	for _, from := range nonTerminals {
		assert.True(t, CanTransition(from, StateCancelled), "%s -> Cancelled", from)
		assert.True(t, CanTransition(from, StateFailed), "%s -> Failed", from)
	}
}

func TestCanTransition_UnknownStates(t *testing.T) {
	assert.False(t, CanTransition(State("Bogus"), StateValidating))
	assert.False(t, CanTransition(StateReceived, State("Bogus")))
}

func TestOrder_TransitionTo(t *testing.T) {
	ord := NewOrder("order-1", nil, nil)
	require.Equal(t, StateReceived, ord.State)

	require.NoError(t, ord.TransitionTo(StateValidating))
	require.NoError(t, ord.TransitionTo(StateAwaitingApproval))
	assert.Equal(t, StateAwaitingApproval, ord.State)

	err := ord.TransitionTo(StateCompleted)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateAwaitingApproval, ord.State, "failed transition must not move the order")

	require.NoError(t, ord.TransitionTo(StateCancelled))
	err = ord.TransitionTo(StatePaymentPending)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateCancelled, ord.State)
}

func TestNewOrder_Defaults(t *testing.T) {
	ord := NewOrder("order-1", nil, nil)

	require.Len(t, ord.Items, 1)
	assert.Equal(t, "DEFAULT", ord.Items[0].SKU)
	assert.Equal(t, 1, ord.Items[0].Quantity)
	assert.True(t, ord.Address.Empty())
	assert.False(t, ord.CreatedAt.IsZero())
}

func TestNewOrder_CountryDefault(t *testing.T) {
	addr := Address{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701"}
	ord := NewOrder("order-1", []Item{{SKU: "ABC", Quantity: 2}}, &addr)

	assert.Equal(t, DefaultCountry, ord.Address.Country)
	assert.Equal(t, "1 Main St", ord.Address.Street)
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  float64
	}{
		{"priced items", []Item{{SKU: "A", Quantity: 2, UnitPrice: 9.99}, {SKU: "B", Quantity: 1, UnitPrice: 0.02}}, 20.0},
		{"zero price falls back to unit", []Item{{SKU: "A", Quantity: 3}}, 3.0},
		{"mixed", []Item{{SKU: "A", Quantity: 2, UnitPrice: 5}, {SKU: "B", Quantity: 4}}, 14.0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Amount(tt.items), 1e-9)
		})
	}
}

func TestValidateItems(t *testing.T) {
	tests := []struct {
		name    string
		items   []Item
		wantErr string
	}{
		{"valid", []Item{{SKU: "A", Quantity: 1, UnitPrice: 2.50}}, ""},
		{"empty list", nil, "no items"},
		{"missing sku", []Item{{Quantity: 1}}, "sku is required"},
		{"zero quantity", []Item{{SKU: "A", Quantity: 0}}, "quantity must be positive"},
		{"negative quantity", []Item{{SKU: "A", Quantity: -2}}, "quantity must be positive"},
		{"negative price", []Item{{SKU: "A", Quantity: 1, UnitPrice: -1}}, "unit price cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItems(tt.items)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddress_Validate(t *testing.T) {
	valid := Address{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US"}
	assert.NoError(t, valid.Validate())

	missingStreet := valid
	missingStreet.Street = ""
	assert.Error(t, missingStreet.Validate())

	missingZip := valid
	missingZip.ZipCode = ""
	assert.Error(t, missingZip.Validate())
}

func TestOrder_SetAddress(t *testing.T) {
	ord := NewOrder("order-1", nil, nil)
	ord.SetAddress(Address{Street: "2 Oak Ave", City: "Portland", State: "OR", ZipCode: "97201"})

	assert.Equal(t, "2 Oak Ave", ord.Address.Street)
	assert.Equal(t, DefaultCountry, ord.Address.Country)
}
