package model

import (
	"fmt"
	"time"
)

type User struct {
	ID                int64      `json:"id" db:"id"`
	Username          *string    `json:"username,omitempty" db:"username"`
	FullName          *string    `json:"full_name,omitempty" db:"full_name"`
	PhoneNumber       *string    `json:"phone_number,omitempty" db:"phone_number"`
	Balance           float64    `json:"balance" db:"balance"`
	ReferralCode      string     `json:"referral_code" db:"referral_code"`
	ReferredBy        *int64     `json:"referred_by,omitempty" db:"referred_by"`
	ReferralBonusPaid bool       `json:"referral_bonus_paid" db:"referral_bonus_paid"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Registered reports whether onboarding finished (a phone number is on file).
func (u *User) Registered() bool {
	return u.PhoneNumber != nil && *u.PhoneNumber != ""
}

// ReferralCodeFor builds the canonical referral code for a user id.
func ReferralCodeFor(userID int64) string {
	return fmt.Sprintf("REF%d", userID)
}

type BannedUser struct {
	UserID   int64     `json:"user_id" db:"user_id"`
	Reason   *string   `json:"reason,omitempty" db:"reason"`
	BannedAt time.Time `json:"banned_at" db:"banned_at"`
}
