package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/NitroDevv/tgbot/internal/model"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrPaymentNotPending = errors.New("payment is not pending")
)

func (r *Repository) CreatePayment(ctx context.Context, userID int64, amount float64, screenshotPath string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (user_id, amount, screenshot_path)
		VALUES ($1, $2, $3)
		RETURNING id`,
		userID, amount, screenshotPath).Scan(&id)
	return id, err
}

func (r *Repository) GetPayment(ctx context.Context, id int64) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) PendingPayments(ctx context.Context) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE status = $1 ORDER BY created_at DESC",
		model.PaymentStatusPending)
	return payments, err
}

// ResolvePayment moves a pending payment to a terminal status. The pending
// guard lives in the statement itself so a resolved payment can never be
// resolved again, regardless of interleaving.
func (r *Repository) ResolvePayment(ctx context.Context, id int64, status model.PaymentStatus, rejectReason *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, reject_reason = $3, resolved_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, status, rejectReason, model.PaymentStatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing row from an already-resolved one.
		if _, err := r.GetPayment(ctx, id); err != nil {
			return err
		}
		return ErrPaymentNotPending
	}
	return nil
}
