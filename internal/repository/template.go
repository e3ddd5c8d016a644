package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/NitroDevv/tgbot/internal/model"
)

var ErrTemplateNotFound = errors.New("template not found")

func (r *Repository) CreateTemplate(ctx context.Context, tpl *model.Template) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO templates (id, name, file_path, run_command, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		tpl.ID, tpl.Name, tpl.FilePath, tpl.RunCommand, tpl.Price).Scan(&tpl.CreatedAt)
}

func (r *Repository) GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	var tpl model.Template
	err := r.db.GetContext(ctx, &tpl, "SELECT * FROM templates WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *Repository) ListTemplates(ctx context.Context) ([]model.Template, error) {
	var templates []model.Template
	err := r.db.SelectContext(ctx, &templates, "SELECT * FROM templates ORDER BY created_at")
	return templates, err
}

// DeleteTemplate removes the catalog row only; instances already
// provisioned from it keep running.
func (r *Repository) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
