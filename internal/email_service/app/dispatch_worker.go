package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
	"github.com/mailflowhq/mailflow/internal/email_service/mailer"
	"github.com/mailflowhq/mailflow/internal/email_service/queue"
	"github.com/mailflowhq/mailflow/internal/email_service/repository"
)

var (
	emailsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailflow",
		Subsystem: "worker",
		Name:      "emails_processed_total",
		Help:      "Total delivery attempts by outcome.",
	}, []string{"status"})
	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mailflow",
		Subsystem: "worker",
		Name:      "delivery_duration_seconds",
		Help:      "Wall time of a single SMTP delivery attempt.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Transport sends one composed message, respecting ctx cancellation.
type Transport interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// EventPublisher broadcasts job lifecycle events to interested
// processes (the API-side notifier, in practice).
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// DispatchWorker consumes delivery jobs from the queue, hands them to
// the SMTP transport, records the outcome on the email row and emits
// terminal lifecycle events.
type DispatchWorker struct {
	emails    repository.EmailRepository
	transport Transport
	events    EventPublisher
	logger    *slog.Logger

	now func() time.Time
}

func NewDispatchWorker(emails repository.EmailRepository, transport Transport, events EventPublisher, logger *slog.Logger) *DispatchWorker {
	return &DispatchWorker{
		emails:    emails,
		transport: transport,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleDeliver is the asynq handler for queue.TaskTypeDeliver.
func (w *DispatchWorker) HandleDeliver(ctx context.Context, task *asynq.Task) error {
	var job domain.DeliveryJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		w.logger.ErrorContext(ctx, "Discarding undecodable delivery payload", "error", err)
		return fmt.Errorf("decode delivery payload: %v: %w", err, asynq.SkipRetry)
	}
	attempt, maxAttempts := attemptFromContext(ctx)
	return w.deliver(ctx, &job, attempt, maxAttempts)
}

// attemptFromContext derives the 1-based attempt number and the total
// attempt budget from asynq task metadata. Outside an asynq server
// (tests, manual invocation) the metadata is absent and the attempt is
// treated as final so failures are reported rather than swallowed.
func attemptFromContext(ctx context.Context) (attempt, maxAttempts int) {
	retried, ok := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok || !ok2 {
		return queue.MaxAttempts, queue.MaxAttempts
	}
	return retried + 1, maxRetry + 1
}

func (w *DispatchWorker) deliver(ctx context.Context, job *domain.DeliveryJob, attempt, maxAttempts int) error {
	w.logger.InfoContext(ctx, "Delivering email",
		"job_id", job.ID, "to", job.To, "attempt", attempt, "max_attempts", maxAttempts)

	timer := prometheus.NewTimer(deliveryDuration)
	err := w.transport.Send(ctx, mailer.Message{
		To:      job.To,
		Subject: job.Subject,
		Body:    job.Body,
		HTML:    job.HTML,
	})
	timer.ObserveDuration()

	// The send may have consumed the whole attempt deadline; status
	// bookkeeping and event publishing must still go through.
	bgCtx := context.WithoutCancel(ctx)

	if err != nil {
		emailsProcessedTotal.WithLabelValues("failed").Inc()
		w.logger.ErrorContext(ctx, "Delivery failed",
			"error", err, "job_id", job.ID, "attempt", attempt)
		if markErr := w.emails.MarkFailed(bgCtx, job.ID, err.Error()); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to record delivery failure",
				"error", markErr, "job_id", job.ID)
		}
		if attempt >= maxAttempts {
			w.publishEvent(bgCtx, domain.SubjectJobFailed, domain.JobEvent{
				JobID:  job.ID,
				UserID: job.UserID,
				Status: "failed",
				Reason: err.Error(),
			})
		}
		return fmt.Errorf("send email %s: %w", job.ID, err)
	}

	emailsProcessedTotal.WithLabelValues("sent").Inc()
	// The message is out; a bookkeeping failure must not trigger a
	// retry that would send it twice.
	if markErr := w.emails.MarkSent(bgCtx, job.ID, w.now().UTC()); markErr != nil {
		w.logger.ErrorContext(ctx, "Email sent but status update failed",
			"error", markErr, "job_id", job.ID)
	}
	w.publishEvent(bgCtx, domain.SubjectJobCompleted, domain.JobEvent{
		JobID:  job.ID,
		UserID: job.UserID,
		Status: "completed",
	})
	w.logger.InfoContext(ctx, "Email delivered", "job_id", job.ID, "to", job.To)
	return nil
}

func (w *DispatchWorker) publishEvent(ctx context.Context, subject string, event domain.JobEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to marshal job event", "error", err, "job_id", event.JobID)
		return
	}
	if err := w.events.Publish(ctx, subject, data); err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish job event",
			"error", err, "subject", subject, "job_id", event.JobID)
	}
}
