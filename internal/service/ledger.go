package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
)

// LedgerStore is the slice of the repository the ledger needs. The
// atomicity of UpdateBalance (single transaction, non-negative guard,
// audit row) is the store's contract, not re-checked here.
type LedgerStore interface {
	GetUserBalance(ctx context.Context, userID int64) (float64, error)
	UpdateBalance(ctx context.Context, userID int64, amount float64, txType model.TransactionType, description string, referenceID *string) (float64, error)
	GetBalanceTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.BalanceTransaction, error)
}

type LedgerService struct {
	store LedgerStore
}

func NewLedgerService(store LedgerStore) *LedgerService {
	return &LedgerService{store: store}
}

func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (float64, error) {
	return s.store.GetUserBalance(ctx, userID)
}

// Credit adds amount to the account. Non-positive amounts are a no-op,
// never an error. Returns the new balance.
func (s *LedgerService) Credit(ctx context.Context, userID int64, amount float64, txType model.TransactionType, description string, referenceID *string) (float64, error) {
	if amount <= 0 {
		return s.store.GetUserBalance(ctx, userID)
	}
	return s.store.UpdateBalance(ctx, userID, amount, txType, description, referenceID)
}

// Debit removes amount from the account, failing with ErrInsufficientFunds
// and no mutation when the balance cannot cover it.
func (s *LedgerService) Debit(ctx context.Context, userID int64, amount float64, txType model.TransactionType, description string, referenceID *string) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := s.store.UpdateBalance(ctx, userID, -amount, txType, description, referenceID)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return balance, ErrInsufficientFunds
		}
		return 0, err
	}
	return balance, nil
}

// AdminTopUp is a manual credit performed by the administrator.
func (s *LedgerService) AdminTopUp(ctx context.Context, userID int64, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	description := fmt.Sprintf("Admin top-up: +%.0f", amount)
	return s.store.UpdateBalance(ctx, userID, amount, model.TransactionTypeAdminTopUp, description, nil)
}

// Transactions returns the account's balance history.
func (s *LedgerService) Transactions(ctx context.Context, userID int64, limit, offset int) ([]model.BalanceTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.GetBalanceTransactions(ctx, userID, limit, offset)
}
