package model

import "time"

// RequiredChannel is a channel the user must be a member of before any
// user-facing flow is allowed.
type RequiredChannel struct {
	ChannelID string    `json:"channel_id" db:"channel_id"`
	Username  string    `json:"username" db:"username"`
	AddedAt   time.Time `json:"added_at" db:"added_at"`
}
