package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NATS subjects for the job lifecycle event stream. The worker process
// publishes on terminal outcomes; the API process's notifier
// subscribes and pushes to the owning user's live connections.
const (
	SubjectJobCompleted = "jobs.email.completed"
	SubjectJobFailed    = "jobs.email.failed"
)

// DeliveryJob is the queue task payload. It carries everything the
// worker needs to send without further lookups.
type DeliveryJob struct {
	ID          string    `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	HTML        string    `json:"html,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// ToJSON marshals the job payload.
func (j *DeliveryJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// JobEvent is the lifecycle event published when a job settles.
type JobEvent struct {
	JobID  string    `json:"job_id"`
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`
	Reason string    `json:"reason,omitempty"`
}

// NewJobID builds a job id unique per submission even within the same
// millisecond: owner id, timestamp, random suffix. The owner id is
// recoverable from the encoding (see OwnerFromJobID).
func NewJobID(userID uuid.UUID, at time.Time, suffix string) string {
	return fmt.Sprintf("%s:%d:%s", userID, at.UnixMilli(), suffix)
}

// OwnerFromJobID extracts the owning user id from a job id.
func OwnerFromJobID(jobID string) (uuid.UUID, error) {
	parts := strings.SplitN(jobID, ":", 2)
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("job id %q has no owner prefix: %w", jobID, err)
	}
	return id, nil
}
