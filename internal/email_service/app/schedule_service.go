package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
	"github.com/mailflowhq/mailflow/internal/email_service/repository"
)

// Enqueuer submits one delayed delivery job to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.DeliveryJob) error
}

// ScheduleService is the job submission gateway: it turns schedule
// requests into persisted email rows plus delayed queue jobs.
type ScheduleService struct {
	emails repository.EmailRepository
	queue  Enqueuer
	logger *slog.Logger

	now        func() time.Time
	randSuffix func() string
}

func NewScheduleService(emails repository.EmailRepository, queue Enqueuer, logger *slog.Logger) *ScheduleService {
	return &ScheduleService{
		emails: emails,
		queue:  queue,
		logger: logger,
		now:    time.Now,
		randSuffix: func() string {
			return uuid.NewString()[:8]
		},
	}
}

// ScheduleResult identifies a single scheduled email.
type ScheduleResult struct {
	JobID   string
	EmailID string
}

// ScheduleOne persists one pending email and enqueues its delivery
// job. A scheduled time in the past fires immediately.
func (s *ScheduleService) ScheduleOne(ctx context.Context, userID uuid.UUID, to, subject, body, html string, scheduledAt time.Time) (*ScheduleResult, error) {
	jobID := domain.NewJobID(userID, s.now(), s.randSuffix())
	email := domain.NewScheduledEmail(jobID, userID, to, subject, body, html, scheduledAt)

	if err := s.emails.Create(ctx, email); err != nil {
		return nil, fmt.Errorf("persist email: %w", err)
	}

	if err := s.enqueue(ctx, email); err != nil {
		// The row exists but no job does; settle it as failed so the
		// pending-implies-live-job invariant holds.
		if markErr := s.emails.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark email failed after enqueue error",
				"error", markErr, "job_id", jobID)
		}
		return nil, fmt.Errorf("enqueue email: %w", err)
	}

	s.logger.InfoContext(ctx, "Email scheduled", "job_id", jobID, "to", to, "scheduled_at", scheduledAt)
	return &ScheduleResult{JobID: jobID, EmailID: email.ID}, nil
}

// ScheduleBatch plans spaced slots for each recipient and submits them
// independently: one recipient's failure does not roll back the
// others. The returned count is the number of jobs actually queued.
func (s *ScheduleService) ScheduleBatch(ctx context.Context, userID uuid.UUID, req *domain.BatchRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	spacing := domain.EffectiveSpacing(req.DelaySeconds, req.HourlyLimit)
	slots := domain.PlanBatch(req.ScheduledAt, len(req.Recipients), spacing)

	queued := 0
	for i, recipient := range req.Recipients {
		jobID := domain.NewJobID(userID, s.now(), s.randSuffix())
		email := domain.NewScheduledEmail(jobID, userID, recipient, req.Subject, req.Body, req.HTML, slots[i])

		if err := s.emails.Create(ctx, email); err != nil {
			s.logger.ErrorContext(ctx, "Failed to persist batch email, skipping recipient",
				"error", err, "job_id", jobID, "recipient", recipient)
			continue
		}
		if err := s.enqueue(ctx, email); err != nil {
			s.logger.ErrorContext(ctx, "Failed to enqueue batch email, skipping recipient",
				"error", err, "job_id", jobID, "recipient", recipient)
			if markErr := s.emails.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
				s.logger.ErrorContext(ctx, "Failed to mark batch email failed",
					"error", markErr, "job_id", jobID)
			}
			continue
		}
		queued++
	}

	s.logger.InfoContext(ctx, "Batch scheduled",
		"user_id", userID, "recipients", len(req.Recipients), "queued", queued,
		"spacing_ms", spacing.Milliseconds())
	return queued, nil
}

func (s *ScheduleService) enqueue(ctx context.Context, email *domain.ScheduledEmail) error {
	job := &domain.DeliveryJob{
		ID:          email.ID,
		UserID:      email.UserID,
		To:          email.Recipient,
		Subject:     email.Subject,
		Body:        email.Body,
		HTML:        email.HTML.String,
		ScheduledAt: email.ScheduledAt,
	}
	err := s.queue.Enqueue(ctx, job)
	if err != nil && errors.Is(err, domain.ErrDuplicateJob) {
		// Practically unreachable with the id scheme, but the queue
		// owns id uniqueness and we surface its verdict unchanged.
		s.logger.WarnContext(ctx, "Duplicate job id rejected by queue", "job_id", email.ID)
	}
	return err
}
