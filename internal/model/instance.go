package model

import (
	"time"

	"github.com/google/uuid"
)

type InstanceStatus string

const (
	InstanceStatusActive  InstanceStatus = "active"
	InstanceStatusStopped InstanceStatus = "stopped"
	InstanceStatusExpired InstanceStatus = "expired"
)

// DefaultInstanceDays is the entitlement granted on purchase.
const DefaultInstanceDays = 30

// Instance is a provisioned, user-owned running of a Template.
type Instance struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	UserID      int64          `json:"user_id" db:"user_id"`
	TemplateID  *uuid.UUID     `json:"template_id,omitempty" db:"template_id"`
	Token       string         `json:"-" db:"token"`
	Status      InstanceStatus `json:"status" db:"status"`
	WorkDir     string         `json:"work_dir" db:"work_dir"`
	LogPath     string         `json:"log_path" db:"log_path"`
	PID         *int           `json:"pid,omitempty" db:"pid"`
	DaysLeft    int            `json:"days_left" db:"days_left"`
	PaymentDate *time.Time     `json:"payment_date,omitempty" db:"payment_date"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

func (i *Instance) IsActive() bool {
	return i.Status == InstanceStatusActive
}

// InstanceWithTemplate joins the instance with its template row; Template
// fields stay nil when the template was deleted after purchase.
type InstanceWithTemplate struct {
	Instance
	TemplateName *string `json:"template_name,omitempty" db:"template_name"`
	RunCommand   *string `json:"run_command,omitempty" db:"template_run_command"`
}
