package store

import (
	"context"
	"fmt"
)

// ClaimPayment inserts a pending ledger row for the payment, or leaves the
// existing row untouched when one is already present. It returns the row as
// stored and whether it existed before this call.
func (s *Store) ClaimPayment(ctx context.Context, paymentID, orderID string, amount float64) (*Payment, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO payments (payment_id, order_id, status, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING`,
		paymentID, orderID, PaymentStatusPending, amount,
	)
	if err != nil {
		return nil, false, fmt.Errorf("store: claim payment: %w", err)
	}

	p, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, false, err
	}
	return p, tag.RowsAffected() == 0, nil
}

// SetPaymentStatus records the outcome of a charge attempt on the ledger row.
func (s *Store) SetPaymentStatus(ctx context.Context, paymentID, status, reference string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, reference = $3, updated_at = NOW()
		WHERE payment_id = $1`,
		paymentID, status, reference,
	)
	if err != nil {
		return fmt.Errorf("store: set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// GetPayment retrieves a ledger row by payment id.
func (s *Store) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT payment_id, order_id, status, amount, COALESCE(reference, ''), created_at, updated_at
		FROM payments
		WHERE payment_id = $1`,
		paymentID,
	)

	var p Payment
	err := row.Scan(&p.PaymentID, &p.OrderID, &p.Status, &p.Amount, &p.Reference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("store: get payment: %w", err)
	}
	return &p, nil
}
