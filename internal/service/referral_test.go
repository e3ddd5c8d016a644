package service

import (
	"context"
	"strings"
	"testing"

	"github.com/NitroDevv/tgbot/internal/model"
)

func seedReferredUser(t *testing.T, store *MemoryStore, referrerID, userID int64) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateUser(ctx, &model.User{ID: referrerID, ReferralCode: model.ReferralCodeFor(referrerID)}); err != nil {
		t.Fatalf("seed referrer: %v", err)
	}
	if err := store.CreateUser(ctx, &model.User{ID: userID, ReferralCode: model.ReferralCodeFor(userID), ReferredBy: &referrerID}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestOnboardingBonusPaidOnce(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	referrals := NewReferralService(store, ledger)
	notifier := newRecordingNotifier()
	referrals.SetNotifier(notifier)
	ctx := context.Background()

	seedReferredUser(t, store, 100, 200)

	// The gate is passed repeatedly; only the first pass pays.
	for i := 0; i < 3; i++ {
		if err := referrals.CreditOnboardingBonus(ctx, 200); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	balance, _ := ledger.GetBalance(ctx, 100)
	if balance != DefaultReferralAmount {
		t.Fatalf("referrer balance = %v, want %v", balance, float64(DefaultReferralAmount))
	}
	if len(store.Transactions()) != 1 {
		t.Fatalf("expected 1 credit, got %d", len(store.Transactions()))
	}
	if msg := notifier.lastText(100); !strings.Contains(msg, "Yangi referal") || !strings.Contains(msg, "so'm") {
		t.Fatalf("unexpected referrer notice: %q", msg)
	}
}

func TestOnboardingBonusNoReferrer(t *testing.T) {
	store := NewMemoryStore()
	referrals := NewReferralService(store, NewLedgerService(store))
	ctx := context.Background()

	if err := store.CreateUser(ctx, &model.User{ID: 1, ReferralCode: model.ReferralCodeFor(1)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := referrals.CreditOnboardingBonus(ctx, 1); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(store.Transactions()) != 0 {
		t.Fatalf("bonus credited without a referrer")
	}
}

func TestOnboardingBonusUsesConfiguredAmount(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	referrals := NewReferralService(store, ledger)
	ctx := context.Background()

	if err := referrals.SetAmount(ctx, 500); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	seedReferredUser(t, store, 10, 20)

	if err := referrals.CreditOnboardingBonus(ctx, 20); err != nil {
		t.Fatalf("CreditOnboardingBonus: %v", err)
	}
	balance, _ := ledger.GetBalance(ctx, 10)
	if balance != 500 {
		t.Fatalf("referrer balance = %v, want 500", balance)
	}
}

func TestSetAmountRejectsNegative(t *testing.T) {
	store := NewMemoryStore()
	referrals := NewReferralService(store, NewLedgerService(store))

	if err := referrals.SetAmount(context.Background(), -1); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestReferralNotifierFailureDoesNotUnwindCredit(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	referrals := NewReferralService(store, ledger)
	notifier := newRecordingNotifier()
	notifier.err = context.DeadlineExceeded
	referrals.SetNotifier(notifier)
	ctx := context.Background()

	seedReferredUser(t, store, 1, 2)
	if err := referrals.CreditOnboardingBonus(ctx, 2); err != nil {
		t.Fatalf("CreditOnboardingBonus: %v", err)
	}
	balance, _ := ledger.GetBalance(ctx, 1)
	if balance != DefaultReferralAmount {
		t.Fatalf("credit unwound by notifier failure: %v", balance)
	}
	paid, _ := store.IsReferralBonusPaid(ctx, 2)
	if !paid {
		t.Fatalf("paid flag not set")
	}
}

func TestReferralLink(t *testing.T) {
	store := NewMemoryStore()
	referrals := NewReferralService(store, NewLedgerService(store))
	ctx := context.Background()

	if err := store.CreateUser(ctx, &model.User{ID: 77, ReferralCode: model.ReferralCodeFor(77)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	link, err := referrals.Link(ctx, 77, "maker_bot")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !strings.HasSuffix(link, "?start=REF77") || !strings.Contains(link, "t.me/maker_bot") {
		t.Fatalf("unexpected link: %s", link)
	}
}
