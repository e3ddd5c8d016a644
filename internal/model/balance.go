package model

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDepositApproved  TransactionType = "deposit_approved"
	TransactionTypeReferralBonus    TransactionType = "referral_bonus"
	TransactionTypeInstancePurchase TransactionType = "instance_purchase"
	TransactionTypeAdminTopUp       TransactionType = "admin_topup"
)

type BalanceTransaction struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        int64           `json:"user_id" db:"user_id"`
	Amount        float64         `json:"amount" db:"amount"` // positive = credit, negative = debit
	Type          TransactionType `json:"type" db:"type"`
	Description   *string         `json:"description,omitempty" db:"description"`
	ReferenceID   *string         `json:"reference_id,omitempty" db:"reference_id"`
	BalanceBefore float64         `json:"balance_before" db:"balance_before"`
	BalanceAfter  float64         `json:"balance_after" db:"balance_after"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
