package repository

import (
	"context"
	"errors"

	"github.com/NitroDevv/tgbot/internal/model"
)

var ErrChannelExists = errors.New("channel already added")

func (r *Repository) RequiredChannels(ctx context.Context) ([]model.RequiredChannel, error) {
	var channels []model.RequiredChannel
	err := r.db.SelectContext(ctx, &channels,
		"SELECT * FROM required_channels ORDER BY added_at")
	return channels, err
}

func (r *Repository) AddRequiredChannel(ctx context.Context, channelID, username string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO required_channels (channel_id, username) VALUES ($1, $2)
		ON CONFLICT (channel_id) DO NOTHING`, channelID, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrChannelExists
	}
	return nil
}

func (r *Repository) RemoveRequiredChannel(ctx context.Context, channelID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM required_channels WHERE channel_id = $1", channelID)
	return err
}
