package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mailflowhq/mailflow/internal/email_service/repository"
	"github.com/mailflowhq/mailflow/internal/public_api/middleware"
)

const analyticsDays = 7

// StatsReader serves per-day delivery counts.
type StatsReader interface {
	DailyStats(ctx context.Context, userID uuid.UUID, since time.Time) ([]repository.DailyStat, error)
}

type AnalyticsHandler struct {
	stats  StatsReader
	logger *slog.Logger

	now func() time.Time
}

func NewAnalyticsHandler(stats StatsReader, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		stats:  stats,
		logger: logger.With("handler", "analytics"),
		now:    time.Now,
	}
}

func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/analytics/daily", h.handleDaily)
}

func (h *AnalyticsHandler) handleDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	since := h.now().UTC().AddDate(0, 0, -analyticsDays).Truncate(24 * time.Hour)
	stats, err := h.stats.DailyStats(ctx, authUser.ID, since)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load daily stats", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}
	if stats == nil {
		stats = []repository.DailyStat{}
	}

	respondJSON(w, http.StatusOK, stats)
}
