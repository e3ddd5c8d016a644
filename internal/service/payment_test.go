package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NitroDevv/tgbot/internal/model"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
	err  error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[int64][]string)}
}

func (n *recordingNotifier) SendMessage(userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent[userID] = append(n.sent[userID], text)
	return nil
}

func (n *recordingNotifier) count(userID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent[userID])
}

func (n *recordingNotifier) lastText(userID int64) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	msgs := n.sent[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func TestApproveCreditsExactlyOnce(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	payments := NewPaymentService(store, ledger)
	notifier := newRecordingNotifier()
	payments.SetNotifier(notifier)
	ctx := context.Background()

	store.SetBalance(7, 1000)

	id, err := payments.Submit(ctx, 7, 20000, "payments/7_1.jpg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	payment, err := payments.Approve(ctx, id)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if payment.Status != model.PaymentStatusApproved {
		t.Fatalf("status = %s, want approved", payment.Status)
	}

	balance, _ := ledger.GetBalance(ctx, 7)
	if balance != 21000 {
		t.Fatalf("balance = %v, want 21000", balance)
	}

	// Second approve must fail and leave the balance alone.
	if _, err := payments.Approve(ctx, id); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second approve: expected ErrIllegalTransition, got %v", err)
	}
	balance, _ = ledger.GetBalance(ctx, 7)
	if balance != 21000 {
		t.Fatalf("balance after double approve = %v, want 21000", balance)
	}
	if notifier.count(7) != 1 {
		t.Fatalf("user notified %d times, want 1", notifier.count(7))
	}
	if msg := notifier.lastText(7); !strings.Contains(msg, "To'lovingiz tasdiqlandi") || !strings.Contains(msg, "21000 so'm") {
		t.Fatalf("unexpected approval notice: %q", msg)
	}
}

func TestRejectHasNoLedgerEffect(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	payments := NewPaymentService(store, ledger)
	ctx := context.Background()

	id, err := payments.Submit(ctx, 3, 5000, "payments/3_1.jpg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	payment, err := payments.Reject(ctx, id, "skrinshot noto'g'ri")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if payment.Status != model.PaymentStatusRejected {
		t.Fatalf("status = %s, want rejected", payment.Status)
	}
	if payment.RejectReason == nil || *payment.RejectReason != "skrinshot noto'g'ri" {
		t.Fatalf("reject reason not recorded: %+v", payment.RejectReason)
	}

	balance, _ := ledger.GetBalance(ctx, 3)
	if balance != 0 {
		t.Fatalf("reject moved the balance: %v", balance)
	}

	// Approving after a reject is also an illegal transition.
	if _, err := payments.Approve(ctx, id); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("approve after reject: expected ErrIllegalTransition, got %v", err)
	}
}

func TestSubmitRejectsNonPositiveAmount(t *testing.T) {
	store := NewMemoryStore()
	payments := NewPaymentService(store, NewLedgerService(store))

	if _, err := payments.Submit(context.Background(), 1, 0, "x.jpg"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestApproveMissingPayment(t *testing.T) {
	store := NewMemoryStore()
	payments := NewPaymentService(store, NewLedgerService(store))

	if _, err := payments.Approve(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotificationFailureDoesNotFailApproval(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedgerService(store)
	payments := NewPaymentService(store, ledger)
	notifier := newRecordingNotifier()
	notifier.err = errors.New("blocked by user")
	payments.SetNotifier(notifier)
	ctx := context.Background()

	id, _ := payments.Submit(ctx, 5, 1000, "payments/5_1.jpg")
	if _, err := payments.Approve(ctx, id); err != nil {
		t.Fatalf("Approve failed on notification error: %v", err)
	}
	balance, _ := ledger.GetBalance(ctx, 5)
	if balance != 1000 {
		t.Fatalf("balance = %v, want 1000", balance)
	}
}

func TestEvidencePathIsCollisionFree(t *testing.T) {
	at := time.Unix(1700000000, 123)
	p := EvidencePath("data/payments", 42, at)
	if filepath.Dir(p) != filepath.Join("data", "payments") {
		t.Fatalf("wrong dir: %s", p)
	}
	base := filepath.Base(p)
	if !strings.HasPrefix(base, "42_") || !strings.HasSuffix(base, ".jpg") {
		t.Fatalf("unexpected file name: %s", base)
	}
}
