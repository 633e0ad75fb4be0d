package store

import (
	"context"
	"fmt"
)

// AppendEvent adds one audit record for the order. Events are write-only
// from the workflows' point of view; nothing in the lifecycle reads them
// back to make decisions.
func (s *Store) AppendEvent(ctx context.Context, orderID, eventType string, payload map[string]any) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (order_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		orderID, eventType, payload,
	)
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail for an order in append order.
func (s *Store) ListEvents(ctx context.Context, orderID string) ([]*Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, event_type, payload, ts
		FROM events
		WHERE order_id = $1
		ORDER BY id ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		if scanErr := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &e.Payload, &e.TS); scanErr != nil {
			return nil, fmt.Errorf("store: scan event: %w", scanErr)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	return out, nil
}
