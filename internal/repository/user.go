package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/NitroDevv/tgbot/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

func (r *Repository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, username, full_name, phone_number, referral_code, referred_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.FullName,
		user.PhoneNumber,
		user.ReferralCode,
		user.ReferredBy,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
}

func (r *Repository) UpdateUserPhone(ctx context.Context, userID int64, phone string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET phone_number = $2, updated_at = NOW() WHERE id = $1", userID, phone)
	return err
}

func (r *Repository) UpdateUserName(ctx context.Context, userID int64, fullName string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET full_name = $2, updated_at = NOW() WHERE id = $1", userID, fullName)
	return err
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE referral_code = $1", code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) CountReferrals(ctx context.Context, referrerID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM users WHERE referred_by = $1", referrerID)
	return count, err
}

// IsReferralBonusPaid reports whether the one-time bonus for this referred
// user was already credited to their referrer.
func (r *Repository) IsReferralBonusPaid(ctx context.Context, userID int64) (bool, error) {
	var paid bool
	err := r.db.GetContext(ctx, &paid,
		"SELECT referral_bonus_paid FROM users WHERE id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrUserNotFound
	}
	return paid, err
}

// MarkReferralBonusPaid sets the flag; setting it when already set is a no-op.
func (r *Repository) MarkReferralBonusPaid(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET referral_bonus_paid = TRUE, updated_at = NOW() WHERE id = $1", userID)
	return err
}

func (r *Repository) AllUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY created_at DESC")
	return users, err
}

func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users")
	return count, err
}

// CountActiveUsers counts distinct owners of instances created in the window.
func (r *Repository) CountActiveUsers(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(DISTINCT user_id) FROM instances WHERE created_at >= $1", since)
	return count, err
}
