package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
	"github.com/mailflowhq/mailflow/internal/email_service/repository"
)

// --- Mocks ---

type MockEmailRepository struct {
	mock.Mock
}

func (m *MockEmailRepository) Create(ctx context.Context, email *domain.ScheduledEmail) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockEmailRepository) GetByID(ctx context.Context, id string, userID uuid.UUID) (*domain.ScheduledEmail, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledEmail), args.Error(1)
}

func (m *MockEmailRepository) List(ctx context.Context, userID uuid.UUID, filter repository.ListFilter) ([]*domain.ScheduledEmail, int, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.ScheduledEmail), args.Int(1), args.Error(2)
}

func (m *MockEmailRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	args := m.Called(ctx, id, sentAt)
	return args.Error(0)
}

func (m *MockEmailRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockEmailRepository) ToggleStar(ctx context.Context, id string, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEmailRepository) DailyStats(ctx context.Context, userID uuid.UUID, since time.Time) ([]repository.DailyStat, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.DailyStat), args.Error(1)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, job *domain.DeliveryJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestScheduleService(emails *MockEmailRepository, q *MockEnqueuer) *ScheduleService {
	svc := NewScheduleService(emails, q, testLogger())
	// Deterministic clock and suffix so job ids are predictable.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	counter := 0
	svc.now = func() time.Time { return base }
	svc.randSuffix = func() string {
		counter++
		return string(rune('a' + counter - 1))
	}
	return svc
}

// --- Tests ---

func TestScheduleOne_Success(t *testing.T) {
	emails := new(MockEmailRepository)
	q := new(MockEnqueuer)
	svc := newTestScheduleService(emails, q)

	userID := uuid.New()
	sendAt := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	emails.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.ScheduledEmail) bool {
		return e.UserID == userID &&
			e.Recipient == "to@example.com" &&
			e.Status == domain.StatusPending &&
			e.ScheduledAt.Equal(sendAt)
	})).Return(nil).Once()

	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(j *domain.DeliveryJob) bool {
		return j.To == "to@example.com" && j.UserID == userID && j.ScheduledAt.Equal(sendAt)
	})).Return(nil).Once()

	res, err := svc.ScheduleOne(context.Background(), userID, "to@example.com", "Hi", "body", "", sendAt)
	require.NoError(t, err)
	assert.Equal(t, res.JobID, res.EmailID)

	owner, err := domain.OwnerFromJobID(res.JobID)
	require.NoError(t, err)
	assert.Equal(t, userID, owner)

	emails.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestScheduleOne_EnqueueFailureMarksRowFailed(t *testing.T) {
	emails := new(MockEmailRepository)
	q := new(MockEnqueuer)
	svc := newTestScheduleService(emails, q)

	userID := uuid.New()
	enqueueErr := errors.New("redis down")

	emails.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	q.On("Enqueue", mock.Anything, mock.Anything).Return(enqueueErr).Once()
	emails.On("MarkFailed", mock.Anything, mock.AnythingOfType("string"), "redis down").Return(nil).Once()

	res, err := svc.ScheduleOne(context.Background(), userID, "to@example.com", "Hi", "body", "", time.Now())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, enqueueErr)

	emails.AssertExpectations(t)
}

func TestScheduleOne_PersistFailureSkipsEnqueue(t *testing.T) {
	emails := new(MockEmailRepository)
	q := new(MockEnqueuer)
	svc := newTestScheduleService(emails, q)

	emails.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	_, err := svc.ScheduleOne(context.Background(), uuid.New(), "to@example.com", "Hi", "body", "", time.Now())
	require.Error(t, err)

	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	emails.AssertExpectations(t)
}

func TestScheduleBatch_SpacesRecipients(t *testing.T) {
	emails := new(MockEmailRepository)
	q := new(MockEnqueuer)
	svc := newTestScheduleService(emails, q)

	userID := uuid.New()
	start := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	req := &domain.BatchRequest{
		Recipients:   []string{"a@example.com", "b@example.com", "c@example.com"},
		Subject:      "Hi",
		Body:         "body",
		ScheduledAt:  start,
		DelaySeconds: 5,
	}

	var slots []time.Time
	emails.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		slots = append(slots, args.Get(1).(*domain.ScheduledEmail).ScheduledAt)
	}).Return(nil).Times(3)
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Times(3)

	queued, err := svc.ScheduleBatch(context.Background(), userID, req)
	require.NoError(t, err)
	assert.Equal(t, 3, queued)

	require.Len(t, slots, 3)
	assert.Equal(t, start, slots[0])
	assert.Equal(t, start.Add(5*time.Second), slots[1])
	assert.Equal(t, start.Add(10*time.Second), slots[2])

	emails.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestScheduleBatch_PartialSuccess(t *testing.T) {
	emails := new(MockEmailRepository)
	q := new(MockEnqueuer)
	svc := newTestScheduleService(emails, q)

	req := &domain.BatchRequest{
		Recipients:  []string{"a@example.com", "b@example.com", "c@example.com"},
		Subject:     "Hi",
		Body:        "body",
		ScheduledAt: time.Now(),
	}

	// Second recipient fails at enqueue, the rest go through.
	emails.On("Create", mock.Anything, mock.Anything).Return(nil).Times(3)
	q.On("Enqueue", mock.Anything, mock.MatchedBy(func(j *domain.DeliveryJob) bool {
		return j.To == "b@example.com"
	})).Return(errors.New("queue full")).Once()
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Twice()
	emails.On("MarkFailed", mock.Anything, mock.AnythingOfType("string"), "queue full").Return(nil).Once()

	queued, err := svc.ScheduleBatch(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	emails.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestScheduleBatch_RejectsEmptyRecipients(t *testing.T) {
	svc := newTestScheduleService(new(MockEmailRepository), new(MockEnqueuer))

	_, err := svc.ScheduleBatch(context.Background(), uuid.New(), &domain.BatchRequest{
		Subject:     "Hi",
		Body:        "body",
		ScheduledAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBatch)
}

func TestScheduleBatch_UniqueJobIDs(t *testing.T) {
	emails := new(MockEmailRepository)
	q := new(MockEnqueuer)
	svc := newTestScheduleService(emails, q)

	seen := map[string]bool{}
	emails.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		id := args.Get(1).(*domain.ScheduledEmail).ID
		assert.False(t, seen[id], "duplicate job id %s", id)
		seen[id] = true
	}).Return(nil).Times(4)
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Times(4)

	req := &domain.BatchRequest{
		Recipients:  []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"},
		Subject:     "Hi",
		Body:        "body",
		ScheduledAt: time.Now(),
	}
	queued, err := svc.ScheduleBatch(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, queued)
	assert.Len(t, seen, 4)
}
