package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
)

type PgTemplateRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgTemplateRepository(db *pgxpool.Pool, logger *slog.Logger) *PgTemplateRepository {
	return &PgTemplateRepository{db: db, logger: logger}
}

func (r *PgTemplateRepository) Create(ctx context.Context, tmpl *domain.Template) error {
	query := `
		INSERT INTO templates (id, user_id, name, subject, body, html, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		tmpl.ID, tmpl.UserID, tmpl.Name, tmpl.Subject, tmpl.Body, tmpl.HTML,
		tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating template", "error", err, "template_id", tmpl.ID)
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *PgTemplateRepository) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Template, error) {
	query := `
		SELECT id, user_id, name, subject, body, html, created_at, updated_at
		FROM templates
		WHERE id = $1 AND user_id = $2
	`
	tmpl := &domain.Template{}
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&tmpl.ID, &tmpl.UserID, &tmpl.Name, &tmpl.Subject, &tmpl.Body, &tmpl.HTML,
		&tmpl.CreatedAt, &tmpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting template", "error", err, "template_id", id)
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tmpl, nil
}

func (r *PgTemplateRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Template, error) {
	query := `
		SELECT id, user_id, name, subject, body, html, created_at, updated_at
		FROM templates
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing templates", "error", err, "user_id", userID)
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.Template
	for rows.Next() {
		tmpl := &domain.Template{}
		if err := rows.Scan(
			&tmpl.ID, &tmpl.UserID, &tmpl.Name, &tmpl.Subject, &tmpl.Body, &tmpl.HTML,
			&tmpl.CreatedAt, &tmpl.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func (r *PgTemplateRepository) Update(ctx context.Context, tmpl *domain.Template) error {
	query := `
		UPDATE templates
		SET name = $1, subject = $2, body = $3, html = $4, updated_at = $5
		WHERE id = $6 AND user_id = $7
	`
	tag, err := r.db.Exec(ctx, query,
		tmpl.Name, tmpl.Subject, tmpl.Body, tmpl.HTML, tmpl.UpdatedAt,
		tmpl.ID, tmpl.UserID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating template", "error", err, "template_id", tmpl.ID)
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgTemplateRepository) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM templates WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting template", "error", err, "template_id", id)
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
