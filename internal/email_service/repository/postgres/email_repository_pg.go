package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
	"github.com/mailflowhq/mailflow/internal/email_service/repository"
)

type PgEmailRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgEmailRepository(db *pgxpool.Pool, logger *slog.Logger) *PgEmailRepository {
	return &PgEmailRepository{db: db, logger: logger}
}

func (r *PgEmailRepository) Create(ctx context.Context, email *domain.ScheduledEmail) error {
	query := `
		INSERT INTO emails (id, user_id, recipient, subject, body, html, scheduled_at, status, starred, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		email.ID, email.UserID, email.Recipient, email.Subject, email.Body, email.HTML,
		email.ScheduledAt, email.Status, email.Starred, email.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating email row", "error", err, "email_id", email.ID)
		return fmt.Errorf("create email: %w", err)
	}
	return nil
}

func (r *PgEmailRepository) GetByID(ctx context.Context, id string, userID uuid.UUID) (*domain.ScheduledEmail, error) {
	query := `
		SELECT id, user_id, recipient, subject, body, html, scheduled_at, status, starred, last_error, created_at, sent_at
		FROM emails
		WHERE id = $1 AND user_id = $2
	`
	email := &domain.ScheduledEmail{}
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&email.ID, &email.UserID, &email.Recipient, &email.Subject, &email.Body, &email.HTML,
		&email.ScheduledAt, &email.Status, &email.Starred, &email.LastError, &email.CreatedAt, &email.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting email by ID", "error", err, "email_id", id)
		return nil, fmt.Errorf("get email: %w", err)
	}
	return email, nil
}

func (r *PgEmailRepository) List(ctx context.Context, userID uuid.UUID, filter repository.ListFilter) ([]*domain.ScheduledEmail, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(recipient ILIKE $%d OR subject ILIKE $%d)", len(args), len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM emails WHERE " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		r.logger.ErrorContext(ctx, "Error counting emails", "error", err, "user_id", userID)
		return nil, 0, fmt.Errorf("count emails: %w", err)
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	listQuery := fmt.Sprintf(`
		SELECT id, user_id, recipient, subject, body, html, scheduled_at, status, starred, last_error, created_at, sent_at
		FROM emails
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing emails", "error", err, "user_id", userID)
		return nil, 0, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var emails []*domain.ScheduledEmail
	for rows.Next() {
		email := &domain.ScheduledEmail{}
		if err := rows.Scan(
			&email.ID, &email.UserID, &email.Recipient, &email.Subject, &email.Body, &email.HTML,
			&email.ScheduledAt, &email.Status, &email.Starred, &email.LastError, &email.CreatedAt, &email.SentAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate emails: %w", err)
	}
	return emails, total, nil
}

func (r *PgEmailRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `UPDATE emails SET status = $1, sent_at = $2, last_error = NULL WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, domain.StatusSent, sentAt, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking email sent", "error", err, "email_id", id)
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgEmailRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `UPDATE emails SET status = $1, last_error = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, domain.StatusFailed, reason, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking email failed", "error", err, "email_id", id)
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgEmailRepository) ToggleStar(ctx context.Context, id string, userID uuid.UUID) (bool, error) {
	query := `UPDATE emails SET starred = NOT starred WHERE id = $1 AND user_id = $2 RETURNING starred`
	var starred bool
	err := r.db.QueryRow(ctx, query, id, userID).Scan(&starred)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error toggling star", "error", err, "email_id", id)
		return false, fmt.Errorf("toggle star: %w", err)
	}
	return starred, nil
}

func (r *PgEmailRepository) DailyStats(ctx context.Context, userID uuid.UUID, since time.Time) ([]repository.DailyStat, error) {
	query := `
		SELECT to_char(created_at, 'YYYY-MM-DD') AS day,
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'pending')
		FROM emails
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.Query(ctx, query, userID, since)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying daily stats", "error", err, "user_id", userID)
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	defer rows.Close()

	var stats []repository.DailyStat
	for rows.Next() {
		var s repository.DailyStat
		if err := rows.Scan(&s.Date, &s.Sent, &s.Failed, &s.Pending); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily stats: %w", err)
	}
	return stats, nil
}
