package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
)

// TaskTypeDeliver is the asynq task type for outbound email delivery.
const TaskTypeDeliver = "email:deliver"

// MaxAttempts is the total delivery budget per job: the first attempt
// plus asynq retries. After the budget is exhausted the task settles
// into the archive, where it stays for inspection.
const MaxAttempts = 3

// SendTimeout bounds one dispatch attempt end-to-end.
const SendTimeout = 30 * time.Second

const retryBaseDelay = 2 * time.Second

// RetryDelay implements exponential backoff starting at 2s (2s, 4s,
// 8s). Plugged into asynq.Config.RetryDelayFunc on the worker side.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 1 {
		n = 1
	}
	return retryBaseDelay << uint(n-1)
}

// Stats mirrors the queue's per-state job counts.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// JobInfo is the queue's view of one task, surfaced by the job-status
// endpoint.
type JobInfo struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	Retried       int       `json:"retried"`
	MaxRetry      int       `json:"max_retry"`
	LastError     string    `json:"last_error,omitempty"`
	NextProcessAt time.Time `json:"next_process_at,omitempty"`
}

// Client submits delayed delivery jobs and inspects queue state. The
// queue itself (delay bookkeeping, retries, archival) is asynq's
// responsibility; this type only adapts it to the domain.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	logger    *slog.Logger
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string, logger *slog.Logger) *Client {
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queueName,
		logger:    logger,
	}
}

// Enqueue submits one delivery job. The job becomes eligible at its
// scheduled time; a time in the past fires immediately. The task id is
// the job id, so resubmitting the same id is rejected with
// domain.ErrDuplicateJob. Completed tasks are dropped; failed tasks
// are archived.
func (c *Client) Enqueue(ctx context.Context, job *domain.DeliveryJob) error {
	payload, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal delivery job: %w", err)
	}

	task := asynq.NewTask(TaskTypeDeliver, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(job.ID),
		asynq.ProcessAt(job.ScheduledAt),
		asynq.MaxRetry(MaxAttempts-1),
		asynq.Timeout(SendTimeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateJob, job.ID)
		}
		return fmt.Errorf("enqueue delivery job: %w", err)
	}

	c.logger.InfoContext(ctx, "Delivery job enqueued",
		"job_id", job.ID, "to", job.To, "scheduled_at", job.ScheduledAt, "state", info.State.String())
	return nil
}

// Stats reports job counts by state for the owning queue.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	qi, err := c.inspector.GetQueueInfo(c.queue)
	if err != nil {
		return Stats{}, fmt.Errorf("get queue info: %w", err)
	}
	return Stats{
		Waiting:   qi.Pending,
		Active:    qi.Active,
		Completed: qi.Completed,
		Failed:    qi.Archived,
		Delayed:   qi.Scheduled + qi.Retry,
	}, nil
}

// Job returns the queue's state for one task id.
func (c *Client) Job(ctx context.Context, jobID string) (*JobInfo, error) {
	ti, err := c.inspector.GetTaskInfo(c.queue, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get task info: %w", err)
	}
	return &JobInfo{
		ID:            ti.ID,
		State:         ti.State.String(),
		Retried:       ti.Retried,
		MaxRetry:      ti.MaxRetry,
		LastError:     ti.LastErr,
		NextProcessAt: ti.NextProcessAt,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
