package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/NitroDevv/tgbot/internal/model"
)

var ErrInstanceNotFound = errors.New("instance not found")

const instanceWithTemplateQuery = `
	SELECT i.*, t.name AS template_name, t.run_command AS template_run_command
	FROM instances i
	LEFT JOIN templates t ON i.template_id = t.id`

func (r *Repository) CreateInstance(ctx context.Context, inst *model.Instance) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO instances (id, user_id, template_id, token, status, work_dir, log_path, pid, days_left, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at`,
		inst.ID, inst.UserID, inst.TemplateID, inst.Token, inst.Status,
		inst.WorkDir, inst.LogPath, inst.PID, inst.DaysLeft).Scan(&inst.CreatedAt)
}

func (r *Repository) GetInstance(ctx context.Context, id uuid.UUID) (*model.InstanceWithTemplate, error) {
	var inst model.InstanceWithTemplate
	err := r.db.GetContext(ctx, &inst, instanceWithTemplateQuery+" WHERE i.id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return &inst, nil
}

func (r *Repository) ListUserInstances(ctx context.Context, userID int64) ([]model.InstanceWithTemplate, error) {
	var instances []model.InstanceWithTemplate
	err := r.db.SelectContext(ctx, &instances,
		instanceWithTemplateQuery+" WHERE i.user_id = $1 ORDER BY i.created_at DESC", userID)
	return instances, err
}

func (r *Repository) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status model.InstanceStatus) error {
	_, err := r.db.ExecContext(ctx, "UPDATE instances SET status = $2 WHERE id = $1", id, status)
	return err
}

func (r *Repository) SetInstanceProcess(ctx context.Context, id uuid.UUID, pid int) error {
	_, err := r.db.ExecContext(ctx, "UPDATE instances SET pid = $2 WHERE id = $1", id, pid)
	return err
}

func (r *Repository) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM instances WHERE id = $1", id)
	return err
}

// DecreaseDaysLeft decrements the remaining entitlement of every active
// instance that still has days left.
func (r *Repository) DecreaseDaysLeft(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE instances SET days_left = days_left - 1
		WHERE days_left > 0 AND status = $1`, model.InstanceStatusActive)
	return err
}

// DisableExpiredInstances expires every active instance that ran out of
// days and returns how many were affected.
func (r *Repository) DisableExpiredInstances(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE instances SET status = $1, days_left = 0
		WHERE days_left <= 0 AND status = $2`,
		model.InstanceStatusExpired, model.InstanceStatusActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InstancesExpiringWithin returns active instances with 0 < days_left <=
// threshold, most urgent first.
func (r *Repository) InstancesExpiringWithin(ctx context.Context, thresholdDays int) ([]model.InstanceWithTemplate, error) {
	var instances []model.InstanceWithTemplate
	err := r.db.SelectContext(ctx, &instances,
		instanceWithTemplateQuery+`
		WHERE i.status = $1 AND i.days_left > 0 AND i.days_left <= $2
		ORDER BY i.days_left ASC`,
		model.InstanceStatusActive, thresholdDays)
	return instances, err
}

// RenewInstance resets the entitlement counter and stamps a new payment
// date; the admin path for reviving an expired instance.
func (r *Repository) RenewInstance(ctx context.Context, id uuid.UUID, days int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE instances SET days_left = $2, payment_date = NOW()
		WHERE id = $1`, id, days)
	return err
}

func (r *Repository) CountInstances(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM instances")
	return count, err
}
