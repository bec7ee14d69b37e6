package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailflowhq/mailflow/internal/email_service/app"
	"github.com/mailflowhq/mailflow/internal/email_service/domain"
	"github.com/mailflowhq/mailflow/internal/email_service/queue"
	"github.com/mailflowhq/mailflow/internal/email_service/repository"
	"github.com/mailflowhq/mailflow/internal/public_api/middleware"
	"github.com/mailflowhq/mailflow/internal/ratelimit"
)

// EmailScheduler is the submission gateway surface.
type EmailScheduler interface {
	ScheduleOne(ctx context.Context, userID uuid.UUID, to, subject, body, html string, scheduledAt time.Time) (*app.ScheduleResult, error)
	ScheduleBatch(ctx context.Context, userID uuid.UUID, req *domain.BatchRequest) (int, error)
}

// QueueInspector reads queue-level state.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
	Job(ctx context.Context, jobID string) (*queue.JobInfo, error)
}

// RateLimiter gates schedule submissions per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (ratelimit.Decision, error)
}

type EmailHandler struct {
	scheduler EmailScheduler
	emails    repository.EmailRepository
	inspector QueueInspector
	limiter   RateLimiter
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewEmailHandler(scheduler EmailScheduler, emails repository.EmailRepository, inspector QueueInspector, limiter RateLimiter, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{
		scheduler: scheduler,
		emails:    emails,
		inspector: inspector,
		limiter:   limiter,
		validate:  validator.New(),
		logger:    logger.With("handler", "email"),
	}
}

// RegisterRoutes mounts the email endpoints on an authenticated router.
func (h *EmailHandler) RegisterRoutes(r chi.Router) {
	r.With(h.rateLimit).Post("/email/schedule", h.handleSchedule)
	r.With(h.rateLimit).Post("/email/batch-schedule", h.handleBatchSchedule)
	r.Get("/email", h.handleList)
	r.Get("/email/stats", h.handleStats)
	r.Get("/email/job/{jobID}", h.handleJobState)
	r.Get("/email/{emailID}", h.handleGet)
	r.Put("/email/{emailID}/star", h.handleToggleStar)
}

// rateLimit denies submissions past the per-user window budget before
// any row or job is created.
func (h *EmailHandler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		authUser, ok := middleware.UserFromContext(ctx)
		if !ok {
			respondError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}

		decision, err := h.limiter.Allow(ctx, authUser.ID.String())
		if err != nil {
			h.logger.ErrorContext(ctx, "Rate limit check failed", "error", err, "user_id", authUser.ID)
			respondError(w, http.StatusServiceUnavailable, "Rate limiter unavailable")
			return
		}
		if !decision.Allowed {
			resetMS := time.Until(decision.ResetAt).Milliseconds()
			if resetMS < 0 {
				resetMS = 0
			}
			respondJSON(w, http.StatusTooManyRequests, RateLimitedResponse{
				Error:     "Too many requests",
				Remaining: decision.Remaining,
				ResetMS:   resetMS,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *EmailHandler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req ScheduleEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.scheduler.ScheduleOne(ctx, authUser.ID, req.To, req.Subject, req.Body, req.HTML, req.ScheduledAt)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to schedule email", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to schedule email")
		return
	}

	respondJSON(w, http.StatusCreated, ScheduleEmailResponse{JobID: result.JobID, EmailID: result.EmailID})
}

func (h *EmailHandler) handleBatchSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req BatchScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	count, err := h.scheduler.ScheduleBatch(ctx, authUser.ID, &domain.BatchRequest{
		Recipients:   req.Recipients,
		Subject:      req.Subject,
		Body:         req.Body,
		HTML:         req.HTML,
		ScheduledAt:  req.ScheduledAt,
		DelaySeconds: req.DelaySeconds,
		HourlyLimit:  req.HourlyLimit,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidBatch) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(ctx, "Failed to schedule batch", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to schedule batch")
		return
	}

	respondJSON(w, http.StatusCreated, BatchScheduleResponse{Count: count})
}

func (h *EmailHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	filter := repository.ListFilter{
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 10),
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}

	emails, total, err := h.emails.List(ctx, authUser.ID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list emails", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to list emails")
		return
	}

	respondJSON(w, http.StatusOK, toListResponse(emails, total, filter))
}

func (h *EmailHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	emailID := chi.URLParam(r, "emailID")
	email, err := h.emails.GetByID(ctx, emailID, authUser.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Email not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to get email", "error", err, "email_id", emailID)
		respondError(w, http.StatusInternalServerError, "Failed to get email")
		return
	}

	respondJSON(w, http.StatusOK, toEmailResponse(email))
}

func (h *EmailHandler) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	emailID := chi.URLParam(r, "emailID")
	starred, err := h.emails.ToggleStar(ctx, emailID, authUser.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Email not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to toggle star", "error", err, "email_id", emailID)
		respondError(w, http.StatusInternalServerError, "Failed to toggle star")
		return
	}

	respondJSON(w, http.StatusOK, StarResponse{ID: emailID, Starred: starred})
}

func (h *EmailHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.inspector.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to read queue stats", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to read queue stats")
		return
	}

	respondJSON(w, http.StatusOK, QueueStatsResponse{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Delayed:   stats.Delayed,
	})
}

func (h *EmailHandler) handleJobState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	// Job ids carry their owner; foreign jobs 404 without a queue
	// round trip.
	owner, err := domain.OwnerFromJobID(jobID)
	if err != nil || owner != authUser.ID {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	info, err := h.inspector.Job(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to read job state", "error", err, "job_id", jobID)
		respondError(w, http.StatusInternalServerError, "Failed to read job state")
		return
	}

	respondJSON(w, http.StatusOK, toJobStateResponse(info))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
