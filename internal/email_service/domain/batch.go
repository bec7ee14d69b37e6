package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchRequest describes one batch submission. It lives only for the
// duration of the call; recipients are not deduplicated.
type BatchRequest struct {
	Recipients   []string
	Subject      string
	Body         string
	HTML         string
	ScheduledAt  time.Time
	DelaySeconds int
	HourlyLimit  int
}

// Validate checks the planner's preconditions. Time parsing errors are
// caught earlier, at the DTO layer, where the raw string is available.
func (b *BatchRequest) Validate() error {
	if len(b.Recipients) == 0 {
		return fmt.Errorf("%w: recipient list is empty", ErrInvalidBatch)
	}
	if strings.TrimSpace(b.Subject) == "" {
		return fmt.Errorf("%w: subject is empty", ErrInvalidBatch)
	}
	if strings.TrimSpace(b.Body) == "" {
		return fmt.Errorf("%w: body is empty", ErrInvalidBatch)
	}
	if b.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled time is not set", ErrInvalidBatch)
	}
	if b.DelaySeconds < 0 {
		return fmt.Errorf("%w: delay seconds must be >= 0", ErrInvalidBatch)
	}
	if b.HourlyLimit < 0 {
		return fmt.Errorf("%w: hourly limit must be >= 0", ErrInvalidBatch)
	}
	return nil
}
