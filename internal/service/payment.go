package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
)

type PaymentStore interface {
	CreatePayment(ctx context.Context, userID int64, amount float64, screenshotPath string) (int64, error)
	GetPayment(ctx context.Context, id int64) (*model.Payment, error)
	PendingPayments(ctx context.Context) ([]model.Payment, error)
	ResolvePayment(ctx context.Context, id int64, status model.PaymentStatus, rejectReason *string) error
}

// PaymentService runs the deposit approval workflow: a user submits an
// amount and an evidence screenshot; the admin approves (ledger credited
// exactly once) or rejects (no ledger effect).
type PaymentService struct {
	store    PaymentStore
	ledger   *LedgerService
	notifier Notifier
}

func NewPaymentService(store PaymentStore, ledger *LedgerService) *PaymentService {
	return &PaymentService{store: store, ledger: ledger}
}

// SetNotifier hangs the outbound transport on the service; nil disables
// notifications entirely.
func (s *PaymentService) SetNotifier(n Notifier) {
	s.notifier = n
}

// EvidencePath builds a collision-free storage path for a deposit
// screenshot, keyed by account and submission time.
func EvidencePath(dir string, userID int64, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%d_%d.jpg", userID, at.UnixNano()))
}

// Submit records a pending deposit request.
func (s *PaymentService) Submit(ctx context.Context, userID int64, amount float64, screenshotPath string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return s.store.CreatePayment(ctx, userID, amount, screenshotPath)
}

func (s *PaymentService) Get(ctx context.Context, id int64) (*model.Payment, error) {
	payment, err := s.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) Pending(ctx context.Context) ([]model.Payment, error) {
	return s.store.PendingPayments(ctx)
}

// Approve moves a pending request to approved and credits the requested
// amount. The transition is one-shot: a request that is not pending fails
// with ErrIllegalTransition and neither status nor balance changes. The
// user notification is best-effort and never reverses the credit.
func (s *PaymentService) Approve(ctx context.Context, paymentID int64) (*model.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if err := s.store.ResolvePayment(ctx, paymentID, model.PaymentStatusApproved, nil); err != nil {
		if errors.Is(err, repository.ErrPaymentNotPending) {
			return nil, ErrIllegalTransition
		}
		return nil, err
	}

	ref := fmt.Sprintf("payment:%d", paymentID)
	description := fmt.Sprintf("Deposit approved: +%.0f", payment.Amount)
	newBalance, err := s.ledger.Credit(ctx, payment.UserID, payment.Amount, model.TransactionTypeDepositApproved, description, &ref)
	if err != nil {
		// The status flip committed but the credit did not; surface it
		// loudly, this needs an operator.
		log.Printf("[Payments] CRITICAL: payment %d approved but credit failed for user %d: %v", paymentID, payment.UserID, err)
		return nil, err
	}

	s.notify(payment.UserID, fmt.Sprintf(
		"✅ To'lovingiz tasdiqlandi!\n\n💰 Summa: %.0f so'm\n💵 Joriy balans: %.0f so'm",
		payment.Amount, newBalance))

	payment.Status = model.PaymentStatusApproved
	return payment, nil
}

// Reject moves a pending request to rejected with a reason. No ledger
// effect; same one-shot guard as Approve.
func (s *PaymentService) Reject(ctx context.Context, paymentID int64, reason string) (*model.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.store.ResolvePayment(ctx, paymentID, model.PaymentStatusRejected, reasonPtr); err != nil {
		if errors.Is(err, repository.ErrPaymentNotPending) {
			return nil, ErrIllegalTransition
		}
		return nil, err
	}

	s.notify(payment.UserID, fmt.Sprintf(
		"❌ To'lovingiz rad etildi.\n\n💰 Summa: %.0f so'm\n📝 Sabab: %s\n\nIltimos, qayta urinib ko'ring yoki admin bilan bog'laning.",
		payment.Amount, reason))

	payment.Status = model.PaymentStatusRejected
	payment.RejectReason = reasonPtr
	return payment, nil
}

func (s *PaymentService) notify(userID int64, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(userID, text); err != nil {
		log.Printf("[Payments] failed to notify user %d: %v", userID, err)
	}
}
