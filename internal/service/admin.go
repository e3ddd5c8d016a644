package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
)

// activeUserWindow bounds the "active users" stat to recent purchasers.
const activeUserWindow = 30 * 24 * time.Hour

type AdminStore interface {
	CountUsers(ctx context.Context) (int, error)
	CountActiveUsers(ctx context.Context, since time.Time) (int, error)
	CountInstances(ctx context.Context) (int, error)
	AllUsers(ctx context.Context) ([]model.User, error)
	CreateTemplate(ctx context.Context, tpl *model.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

type Stats struct {
	TotalUsers     int
	ActiveUsers    int
	TotalInstances int
}

type BroadcastResult struct {
	Sent   int
	Failed int
}

// AdminService groups the operator-only surface: stats, template catalog
// management, balance grants, broadcasts.
type AdminService struct {
	store    AdminStore
	ledger   *LedgerService
	notifier Notifier
}

func NewAdminService(store AdminStore, ledger *LedgerService) *AdminService {
	return &AdminService{store: store, ledger: ledger}
}

func (s *AdminService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.store.CountActiveUsers(ctx, time.Now().Add(-activeUserWindow))
	if err != nil {
		return nil, err
	}
	instances, err := s.store.CountInstances(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{TotalUsers: total, ActiveUsers: active, TotalInstances: instances}, nil
}

func (s *AdminService) AddTemplate(ctx context.Context, tpl *model.Template) error {
	if tpl.Name == "" || tpl.FilePath == "" {
		return ErrInvalidInput
	}
	if tpl.Price < 0 {
		return ErrInvalidAmount
	}
	return s.store.CreateTemplate(ctx, tpl)
}

func (s *AdminService) Templates(ctx context.Context) ([]model.Template, error) {
	return s.store.ListTemplates(ctx)
}

func (s *AdminService) GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	tpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tpl, nil
}

// DeleteTemplate removes a catalog entry. Existing instances keep running;
// their template reference is nulled at the database level.
func (s *AdminService) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// TopUp grants balance directly, outside the payment workflow.
func (s *AdminService) TopUp(ctx context.Context, userID int64, amount float64) (float64, error) {
	balance, err := s.ledger.AdminTopUp(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	if s.notifier != nil {
		text := fmt.Sprintf("✅ Sizning balansingiz %.0f so'm ga to'ldirildi!\n\n💵 Joriy balans: %.0f so'm", amount, balance)
		if err := s.notifier.SendMessage(userID, text); err != nil {
			log.Printf("[Admin] topup notice failed: user=%d err=%v", userID, err)
		}
	}
	return balance, nil
}

// UsersReport renders the full account list as a plain-text table, one
// user per line, for delivery to the operator as a file.
func (s *AdminService) UsersReport(ctx context.Context) (string, error) {
	users, err := s.store.AllUsers(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("FOYDALANUVCHILAR RO'YXATI\n")
	b.WriteString(strings.Repeat("=", 70) + "\n\n")
	fmt.Fprintf(&b, "%-5s %-12s %-20s %-20s %-15s %-10s %s\n",
		"No", "ID", "Ism", "Username", "Telefon", "Balans", "Sana")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for i, u := range users {
		fmt.Fprintf(&b, "%-5d %-12d %-20s %-20s %-15s %-10.0f %s\n",
			i+1, u.ID,
			derefOr(u.FullName, "-"),
			derefOr(u.Username, "-"),
			derefOr(u.PhoneNumber, "-"),
			u.Balance,
			u.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "\nJami: %d ta foydalanuvchi\n", len(users))
	return b.String(), nil
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

// Broadcast sends text to every registered user, counting outcomes.
// Blocked and deleted accounts just bump the failed counter.
func (s *AdminService) Broadcast(ctx context.Context, text string) (*BroadcastResult, error) {
	if s.notifier == nil {
		return nil, errors.New("no notifier configured")
	}
	users, err := s.store.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	res := &BroadcastResult{}
	for _, u := range users {
		if err := s.notifier.SendMessage(u.ID, text); err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}
	log.Printf("[Admin] broadcast done: sent=%d failed=%d", res.Sent, res.Failed)
	return res, nil
}
