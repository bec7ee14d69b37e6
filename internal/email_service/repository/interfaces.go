package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
)

// ListFilter narrows and pages an email listing.
type ListFilter struct {
	Page   int
	Limit  int
	Status string // empty = all
	Search string // matches recipient or subject, case-insensitive
}

// DailyStat is one day's delivery counts for the analytics endpoint.
type DailyStat struct {
	Date    string `json:"date"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Pending int    `json:"pending"`
}

// EmailRepository manages ScheduledEmail rows. Status writes are
// unconditional: every dispatch attempt overwrites the previous
// attempt's outcome, so a retry that succeeds after an earlier
// failure leaves the row at "sent".
type EmailRepository interface {
	Create(ctx context.Context, email *domain.ScheduledEmail) error
	GetByID(ctx context.Context, id string, userID uuid.UUID) (*domain.ScheduledEmail, error)
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]*domain.ScheduledEmail, int, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ToggleStar(ctx context.Context, id string, userID uuid.UUID) (bool, error)
	DailyStats(ctx context.Context, userID uuid.UUID, since time.Time) ([]DailyStat, error)
}

// TemplateRepository manages reusable templates, owner-scoped.
type TemplateRepository interface {
	Create(ctx context.Context, tmpl *domain.Template) error
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Template, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Template, error)
	Update(ctx context.Context, tmpl *domain.Template) error
	Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}
