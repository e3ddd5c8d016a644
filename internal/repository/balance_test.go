package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/NitroDevv/tgbot/internal/model"
)

func TestUpdateBalanceCommitsCreditWithAuditRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1000.0))
	mock.ExpectExec("UPDATE users SET balance = \\$1").
		WithArgs(21000.0, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO balance_transactions").
		WithArgs(int64(7), 20000.0, model.TransactionTypeDepositApproved, sqlmock.AnyArg(), sqlmock.AnyArg(), 1000.0, 21000.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	balance, err := repo.UpdateBalance(ctx, 7, 20000, model.TransactionTypeDepositApproved, "Deposit approved", nil)
	if err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	if balance != 21000 {
		t.Fatalf("balance = %v, want 21000", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateBalanceRollsBackInsufficientDebit(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(100.0))
	mock.ExpectRollback()

	balance, err := repo.UpdateBalance(ctx, 7, -500, model.TransactionTypeInstancePurchase, "too big", nil)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if balance != 100 {
		t.Fatalf("returned balance = %v, want the untouched 100", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestResolvePaymentIsOneShot(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	// The pending guard is in the statement; zero rows affected on an
	// already-resolved payment.
	mock.ExpectExec("UPDATE payments").
		WithArgs(int64(5), model.PaymentStatusApproved, nil, model.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM payments WHERE id = \\$1").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "screenshot_path", "status", "created_at"}).
			AddRow(int64(5), int64(7), 1000.0, "payments/7_1.jpg", string(model.PaymentStatusApproved), time.Now()))

	err := repo.ResolvePayment(ctx, 5, model.PaymentStatusApproved, nil)
	if !errors.Is(err, ErrPaymentNotPending) {
		t.Fatalf("expected ErrPaymentNotPending, got %v", err)
	}
}

func TestResolvePaymentMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE payments").
		WithArgs(int64(9), model.PaymentStatusRejected, sqlmock.AnyArg(), model.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM payments WHERE id = \\$1").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.ResolvePayment(context.Background(), 9, model.PaymentStatusRejected, nil)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
