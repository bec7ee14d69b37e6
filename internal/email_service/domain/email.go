package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EmailStatus represents the lifecycle state of a scheduled email.
type EmailStatus string

const (
	StatusPending EmailStatus = "pending" // Persisted, queue job live, not yet dispatched
	StatusSent    EmailStatus = "sent"    // Transport accepted the message
	StatusFailed  EmailStatus = "failed"  // Last dispatch attempt failed
)

// ScheduledEmail is one message owned by one user. The worker is the
// only writer of Status/SentAt/LastError; the owner flips Starred.
// Rows are never deleted by this system.
type ScheduledEmail struct {
	ID          string         `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	Recipient   string         `json:"to"`
	Subject     string         `json:"subject"`
	Body        string         `json:"body"`
	HTML        sql.NullString `json:"-"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Status      EmailStatus    `json:"status"`
	Starred     bool           `json:"starred"`
	LastError   sql.NullString `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	SentAt      sql.NullTime   `json:"-"`
}

// NewScheduledEmail creates a pending email for the given slot.
// ID is the job id; html may be empty.
func NewScheduledEmail(id string, userID uuid.UUID, recipient, subject, body, html string, scheduledAt time.Time) *ScheduledEmail {
	return &ScheduledEmail{
		ID:          id,
		UserID:      userID,
		Recipient:   recipient,
		Subject:     subject,
		Body:        body,
		HTML:        sql.NullString{String: html, Valid: html != ""},
		ScheduledAt: scheduledAt,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}
