package store

import (
	"context"
	"fmt"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
)

// SaveOrder upserts the order row. The orchestrator calls this after every
// state transition, so the row always reflects the latest lifecycle state.
func (s *Store) SaveOrder(ctx context.Context, o *lifecycle.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, state, address, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			address = EXCLUDED.address,
			items = EXCLUDED.items,
			updated_at = NOW()`,
		o.ID, string(o.State), o.Address, o.Items, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by id.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*lifecycle.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, state, address, items, created_at, updated_at
		FROM orders
		WHERE id = $1`,
		orderID,
	)

	var (
		o     lifecycle.Order
		state string
	)
	err := row.Scan(&o.ID, &state, &o.Address, &o.Items, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("store: get order: %w", err)
	}
	o.State = lifecycle.State(state)
	return &o, nil
}
