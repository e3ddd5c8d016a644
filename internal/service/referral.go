package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
)

// DefaultReferralAmount is credited per referral unless the administrator
// changed the setting.
const DefaultReferralAmount = 300

const settingReferralAmount = "referral_amount"

type ReferralStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	IsReferralBonusPaid(ctx context.Context, userID int64) (bool, error)
	MarkReferralBonusPaid(ctx context.Context, userID int64) error
	CountReferrals(ctx context.Context, referrerID int64) (int, error)
	GetSettingFloat(ctx context.Context, key string) (float64, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ReferralService pays the one-time onboarding bonus to referrers.
type ReferralService struct {
	store    ReferralStore
	ledger   *LedgerService
	notifier Notifier
}

func NewReferralService(store ReferralStore, ledger *LedgerService) *ReferralService {
	return &ReferralService{store: store, ledger: ledger}
}

func (s *ReferralService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Amount returns the current per-referral bonus; a missing or malformed
// setting falls back to the default.
func (s *ReferralService) Amount(ctx context.Context) float64 {
	amount, err := s.store.GetSettingFloat(ctx, settingReferralAmount)
	if err != nil {
		return DefaultReferralAmount
	}
	return amount
}

func (s *ReferralService) SetAmount(ctx context.Context, amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	return s.store.SetSetting(ctx, settingReferralAmount, fmt.Sprintf("%g", amount))
}

// CreditOnboardingBonus pays the referrer of userID once, ever. It runs
// each time the user passes the subscription gate; the paid flag makes
// repeats a no-op. The flag is set after the credit so a crash between the
// two is recovered by the next run, at worst duplicating one credit inside
// that window.
func (s *ReferralService) CreditOnboardingBonus(ctx context.Context, userID int64) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.ReferredBy == nil {
		return nil
	}

	paid, err := s.store.IsReferralBonusPaid(ctx, userID)
	if err != nil {
		return err
	}
	if paid {
		return nil
	}

	amount := s.Amount(ctx)
	ref := fmt.Sprintf("referral:%d", userID)
	description := fmt.Sprintf("Referral bonus: +%.0f", amount)
	newBalance, err := s.ledger.Credit(ctx, *user.ReferredBy, amount, model.TransactionTypeReferralBonus, description, &ref)
	if err != nil {
		return fmt.Errorf("credit referrer %d: %w", *user.ReferredBy, err)
	}

	if err := s.store.MarkReferralBonusPaid(ctx, userID); err != nil {
		return fmt.Errorf("mark bonus paid for user %d: %w", userID, err)
	}

	log.Printf("[Referral] bonus paid: user=%d referrer=%d amount=%.0f", userID, *user.ReferredBy, amount)

	if s.notifier != nil {
		display := "Foydalanuvchi"
		if user.Username != nil && *user.Username != "" {
			display = "@" + *user.Username
		} else if user.FullName != nil && *user.FullName != "" {
			display = *user.FullName
		}
		err := s.notifier.SendMessage(*user.ReferredBy, fmt.Sprintf(
			"🎉 Yangi referal!\n\n👤 %s botga qo'shildi va obuna bo'ldi\n💰 Balansingizga %.0f so'm qo'shildi\n💵 Joriy balans: %.0f so'm",
			display, amount, newBalance))
		if err != nil {
			log.Printf("[Referral] failed to notify referrer %d: %v", *user.ReferredBy, err)
		}
	}

	return nil
}

// Stats returns how many accounts the user referred.
func (s *ReferralService) Stats(ctx context.Context, userID int64) (int, error) {
	return s.store.CountReferrals(ctx, userID)
}

// Link builds the deep link a user shares to refer others.
func (s *ReferralService) Link(ctx context.Context, userID int64, botUsername string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return "https://t.me/" + botUsername + "?start=" + user.ReferralCode, nil
}
