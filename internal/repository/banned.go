package repository

import (
	"context"

	"github.com/NitroDevv/tgbot/internal/model"
)

func (r *Repository) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM banned_users WHERE user_id = $1", userID)
	return count > 0, err
}

func (r *Repository) BanUser(ctx context.Context, userID int64, reason string) error {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO banned_users (user_id, reason) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, reasonPtr)
	return err
}

func (r *Repository) UnbanUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM banned_users WHERE user_id = $1", userID)
	return err
}

func (r *Repository) ListBanned(ctx context.Context) ([]model.BannedUser, error) {
	var banned []model.BannedUser
	err := r.db.SelectContext(ctx, &banned,
		"SELECT * FROM banned_users ORDER BY banned_at DESC")
	return banned, err
}
