package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.Template) error
	GetOwned(ctx context.Context, id, ownerID int) (*model.Template, error)
	ListByOwner(ctx context.Context, ownerID int) ([]model.Template, error)
	Update(ctx context.Context, t *model.Template) error
	Delete(ctx context.Context, id, ownerID int) error
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, user_id, name, subject, body, created_at, updated_at`

func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	t.CreatedAt = time.Now()
	query := `
        INSERT INTO templates (user_id, name, subject, body, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query, t.OwnerID, t.Name, t.Subject, t.Body, t.CreatedAt).Scan(&t.ID)
	return appErrors.NewStoreFault("create template", err)
}

func (r *TemplateRepository) GetOwned(ctx context.Context, id, ownerID int) (*model.Template, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=$1 AND user_id=$2`, id, ownerID)
	return scanTemplateRow(row, id)
}

func (r *TemplateRepository) ListByOwner(ctx context.Context, ownerID int) ([]model.Template, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, appErrors.NewStoreFault("list templates", err)
	}
	defer rows.Close()

	templates := []model.Template{}
	for rows.Next() {
		var t model.Template
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, appErrors.NewStoreFault("list templates", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStoreFault("list templates", err)
	}
	return templates, nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.Template) error {
	query := `
        UPDATE templates
        SET name=$1, subject=$2, body=$3, updated_at=NOW()
        WHERE id=$4 AND user_id=$5
    `
	res, err := r.DB.ExecContext(ctx, query, t.Name, t.Subject, t.Body, t.ID, t.OwnerID)
	if err != nil {
		return appErrors.NewStoreFault("update template", err)
	}
	return requireRow(res, appErrors.NewNotFound("template", t.ID))
}

func (r *TemplateRepository) Delete(ctx context.Context, id, ownerID int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=$1 AND user_id=$2`, id, ownerID)
	if err != nil {
		return appErrors.NewStoreFault("delete template", err)
	}
	return requireRow(res, appErrors.NewNotFound("template", id))
}

func scanTemplateRow(row *sql.Row, id int) (*model.Template, error) {
	var t model.Template
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("template", id)
		}
		return nil, appErrors.NewStoreFault("get template", err)
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
