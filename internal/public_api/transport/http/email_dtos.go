package http

import (
	"time"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
	"github.com/mailflowhq/mailflow/internal/email_service/queue"
	"github.com/mailflowhq/mailflow/internal/email_service/repository"
)

// ScheduleEmailRequest DTO for POST /email/schedule.
type ScheduleEmailRequest struct {
	To          string    `json:"to" validate:"required,email"`
	Subject     string    `json:"subject" validate:"required,min=1"`
	Body        string    `json:"body" validate:"required,min=1"`
	HTML        string    `json:"html,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// ScheduleEmailResponse DTO.
type ScheduleEmailResponse struct {
	JobID   string `json:"job_id"`
	EmailID string `json:"email_id"`
}

// BatchScheduleRequest DTO for POST /email/batch-schedule.
type BatchScheduleRequest struct {
	Recipients   []string  `json:"recipients" validate:"required,min=1,dive,email"`
	Subject      string    `json:"subject" validate:"required,min=1"`
	Body         string    `json:"body" validate:"required,min=1"`
	HTML         string    `json:"html,omitempty"`
	ScheduledAt  time.Time `json:"scheduled_at" validate:"required"`
	DelaySeconds int       `json:"delay_seconds" validate:"gte=0"`
	HourlyLimit  int       `json:"hourly_limit" validate:"gte=0"`
}

// BatchScheduleResponse DTO.
type BatchScheduleResponse struct {
	Count int `json:"count"`
}

// EmailResponse is one scheduled email record.
type EmailResponse struct {
	ID          string     `json:"id"`
	Recipient   string     `json:"recipient"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	HTML        string     `json:"html,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	Starred     bool       `json:"starred"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// ListEmailsResponse DTO for GET /email.
type ListEmailsResponse struct {
	Emails     []EmailResponse `json:"emails"`
	Pagination Pagination      `json:"pagination"`
}

// StarResponse DTO for PUT /email/{id}/star.
type StarResponse struct {
	ID      string `json:"id"`
	Starred bool   `json:"starred"`
}

// QueueStatsResponse DTO for GET /email/stats.
type QueueStatsResponse struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// JobStateResponse DTO for GET /email/job/{jobID}.
type JobStateResponse struct {
	ID            string     `json:"id"`
	State         string     `json:"state"`
	Retried       int        `json:"retried"`
	MaxRetry      int        `json:"max_retry"`
	LastError     string     `json:"last_error,omitempty"`
	NextProcessAt *time.Time `json:"next_process_at,omitempty"`
}

// RateLimitedResponse is the 429 body.
type RateLimitedResponse struct {
	Error     string `json:"error"`
	Remaining int    `json:"remaining"`
	ResetMS   int64  `json:"reset_ms"`
}

func toEmailResponse(email *domain.ScheduledEmail) EmailResponse {
	resp := EmailResponse{
		ID:          email.ID,
		Recipient:   email.Recipient,
		Subject:     email.Subject,
		Body:        email.Body,
		HTML:        email.HTML.String,
		ScheduledAt: email.ScheduledAt,
		Status:      string(email.Status),
		Starred:     email.Starred,
		LastError:   email.LastError.String,
		CreatedAt:   email.CreatedAt,
	}
	if email.SentAt.Valid {
		sentAt := email.SentAt.Time
		resp.SentAt = &sentAt
	}
	return resp
}

func toListResponse(emails []*domain.ScheduledEmail, total int, filter repository.ListFilter) ListEmailsResponse {
	out := make([]EmailResponse, 0, len(emails))
	for _, email := range emails {
		out = append(out, toEmailResponse(email))
	}
	pages := 0
	if filter.Limit > 0 {
		pages = (total + filter.Limit - 1) / filter.Limit
	}
	return ListEmailsResponse{
		Emails: out,
		Pagination: Pagination{
			Total: total,
			Page:  filter.Page,
			Limit: filter.Limit,
			Pages: pages,
		},
	}
}

func toJobStateResponse(info *queue.JobInfo) JobStateResponse {
	resp := JobStateResponse{
		ID:        info.ID,
		State:     info.State,
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastError,
	}
	if !info.NextProcessAt.IsZero() {
		next := info.NextProcessAt
		resp.NextProcessAt = &next
	}
	return resp
}
