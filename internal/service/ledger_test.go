package service

import (
	"context"
	"errors"
	"testing"

	"github.com/NitroDevv/tgbot/internal/model"
)

func TestDebitNeverDrivesBalanceNegative(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	ctx := context.Background()

	store.SetBalance(1, 100)

	if _, err := ledger.Debit(ctx, 1, 150, model.TransactionTypeInstancePurchase, "too big", nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err := ledger.GetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("balance changed after failed debit: %v", balance)
	}
	if len(store.Transactions()) != 0 {
		t.Fatalf("failed debit left an audit row")
	}
}

func TestDebitToExactlyZero(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	ctx := context.Background()

	store.SetBalance(1, 100)

	balance, err := ledger.Debit(ctx, 1, 100, model.TransactionTypeInstancePurchase, "all in", nil)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %v", balance)
	}
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	ctx := context.Background()

	for _, amount := range []float64{0, -5} {
		if _, err := ledger.Debit(ctx, 1, amount, model.TransactionTypeInstancePurchase, "bad", nil); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCreditNonPositiveIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	ctx := context.Background()

	store.SetBalance(1, 42)

	balance, err := ledger.Credit(ctx, 1, 0, model.TransactionTypeAdminTopUp, "noop", nil)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if balance != 42 {
		t.Fatalf("expected unchanged balance 42, got %v", balance)
	}
	if len(store.Transactions()) != 0 {
		t.Fatalf("no-op credit left an audit row")
	}
}

func TestEveryMutationLeavesAuditRow(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	ctx := context.Background()

	if _, err := ledger.Credit(ctx, 1, 1000, model.TransactionTypeDepositApproved, "deposit", nil); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := ledger.Debit(ctx, 1, 400, model.TransactionTypeInstancePurchase, "purchase", nil); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	txs := store.Transactions()
	if len(txs) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(txs))
	}
	if txs[0].BalanceBefore != 0 || txs[0].BalanceAfter != 1000 {
		t.Fatalf("credit row before/after wrong: %+v", txs[0])
	}
	if txs[1].Amount != -400 || txs[1].BalanceAfter != 600 {
		t.Fatalf("debit row wrong: %+v", txs[1])
	}
}

func TestAdminTopUpRejectsNonPositive(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)

	if _, err := ledger.AdminTopUp(context.Background(), 1, -10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
