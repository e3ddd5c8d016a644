package service

import (
	"context"
	"errors"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
)

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserPhone(ctx context.Context, userID int64, phone string) error
	UpdateUserName(ctx context.Context, userID int64, fullName string) error
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	IsBanned(ctx context.Context, userID int64) (bool, error)
	BanUser(ctx context.Context, userID int64, reason string) error
	UnbanUser(ctx context.Context, userID int64) error
}

// IncomingUser is what the transport knows about the sender of an event.
type IncomingUser struct {
	ID       int64
	Username string
}

type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

// GetOrCreate registers the sender on first contact. referralCode, when it
// resolves to another account, records the referrer relationship; a user
// can never refer themselves. Reports whether the account is new.
func (s *UserService) GetOrCreate(ctx context.Context, in IncomingUser, referralCode string) (*model.User, bool, error) {
	existing, err := s.store.GetUser(ctx, in.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, err
	}

	var referredBy *int64
	if referralCode != "" {
		referrer, err := s.store.GetUserByReferralCode(ctx, referralCode)
		if err == nil && referrer.ID != in.ID {
			referredBy = &referrer.ID
		}
	}

	user := &model.User{
		ID:           in.ID,
		ReferralCode: model.ReferralCodeFor(in.ID),
		ReferredBy:   referredBy,
	}
	if in.Username != "" {
		user.Username = &in.Username
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// SetPhone completes registration: the phone number is the onboarding
// requirement the /start flow collects.
func (s *UserService) SetPhone(ctx context.Context, userID int64, phone string) error {
	if phone == "" {
		return ErrInvalidInput
	}
	if phone[0] != '+' {
		phone = "+" + phone
	}
	return s.store.UpdateUserPhone(ctx, userID, phone)
}

func (s *UserService) SetName(ctx context.Context, userID int64, fullName string) error {
	return s.store.UpdateUserName(ctx, userID, fullName)
}

func (s *UserService) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return s.store.IsBanned(ctx, userID)
}

func (s *UserService) Ban(ctx context.Context, userID int64, reason string) error {
	return s.store.BanUser(ctx, userID, reason)
}

func (s *UserService) Unban(ctx context.Context, userID int64) error {
	return s.store.UnbanUser(ctx, userID)
}
