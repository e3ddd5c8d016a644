package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Payment is a user deposit request awaiting admin review. Approved and
// rejected are terminal.
type Payment struct {
	ID             int64         `json:"id" db:"id"`
	UserID         int64         `json:"user_id" db:"user_id"`
	Amount         float64       `json:"amount" db:"amount"`
	ScreenshotPath string        `json:"screenshot_path" db:"screenshot_path"`
	Status         PaymentStatus `json:"status" db:"status"`
	RejectReason   *string       `json:"reject_reason,omitempty" db:"reject_reason"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
}

func (p *Payment) Resolved() bool {
	return p.Status != PaymentStatusPending
}
