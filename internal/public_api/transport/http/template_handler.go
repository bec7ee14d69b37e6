package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
	"github.com/mailflowhq/mailflow/internal/email_service/repository"
	"github.com/mailflowhq/mailflow/internal/public_api/middleware"
)

type TemplateHandler struct {
	templates repository.TemplateRepository
	validate  *validator.Validate
	logger    *slog.Logger

	now func() time.Time
}

func NewTemplateHandler(templates repository.TemplateRepository, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		validate:  validator.New(),
		logger:    logger.With("handler", "template"),
		now:       time.Now,
	}
}

// RegisterRoutes mounts the template CRUD on an authenticated router.
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Post("/templates", h.handleCreate)
	r.Get("/templates", h.handleList)
	r.Get("/templates/{templateID}", h.handleGet)
	r.Put("/templates/{templateID}", h.handleUpdate)
	r.Delete("/templates/{templateID}", h.handleDelete)
}

func (h *TemplateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	now := h.now().UTC()
	tmpl := &domain.Template{
		ID:        uuid.New(),
		UserID:    authUser.ID,
		Name:      req.Name,
		Subject:   req.Subject,
		Body:      req.Body,
		HTML:      sql.NullString{String: req.HTML, Valid: req.HTML != ""},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.templates.Create(ctx, tmpl); err != nil {
		h.logger.ErrorContext(ctx, "Failed to create template", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	respondJSON(w, http.StatusCreated, toTemplateResponse(tmpl))
}

func (h *TemplateHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	templates, err := h.templates.ListByUser(ctx, authUser.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list templates", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	out := make([]TemplateResponse, 0, len(templates))
	for _, tmpl := range templates {
		out = append(out, toTemplateResponse(tmpl))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *TemplateHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid template ID")
		return
	}

	tmpl, err := h.templates.GetByID(ctx, templateID, authUser.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Template not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to get template", "error", err, "template_id", templateID)
		respondError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}

	respondJSON(w, http.StatusOK, toTemplateResponse(tmpl))
}

func (h *TemplateHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid template ID")
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	tmpl, err := h.templates.GetByID(ctx, templateID, authUser.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Template not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to load template for update", "error", err, "template_id", templateID)
		respondError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	tmpl.Name = req.Name
	tmpl.Subject = req.Subject
	tmpl.Body = req.Body
	tmpl.HTML = sql.NullString{String: req.HTML, Valid: req.HTML != ""}
	tmpl.UpdatedAt = h.now().UTC()

	if err := h.templates.Update(ctx, tmpl); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Template not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to update template", "error", err, "template_id", templateID)
		respondError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	respondJSON(w, http.StatusOK, toTemplateResponse(tmpl))
}

func (h *TemplateHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid template ID")
		return
	}

	if err := h.templates.Delete(ctx, templateID, authUser.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Template not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to delete template", "error", err, "template_id", templateID)
		respondError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
