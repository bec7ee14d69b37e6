package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailflowhq/mailflow/internal/public_api/middleware"
	"github.com/mailflowhq/mailflow/internal/user_service/domain"
)

const oauthStateCookie = "oauth_state"

// AuthService is the slice of the user service the handler needs.
type AuthService interface {
	Register(ctx context.Context, email, name, password string) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, name string) (*domain.User, error)
}

// GoogleAuthService drives the Google sign-in flow.
type GoogleAuthService interface {
	LoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*domain.User, string, error)
}

type AuthHandler struct {
	authService   AuthService
	googleService GoogleAuthService
	clientURL     string
	validate      *validator.Validate
	logger        *slog.Logger
}

func NewAuthHandler(authService AuthService, googleService GoogleAuthService, clientURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		googleService: googleService,
		clientURL:     clientURL,
		validate:      validator.New(),
		logger:        logger.With("handler", "auth"),
	}
}

// RegisterPublicRoutes mounts the unauthenticated auth endpoints.
func (h *AuthHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
	r.Get("/auth/google", h.handleGoogleLogin)
	r.Get("/auth/google/callback", h.handleGoogleCallback)
}

// RegisterProtectedRoutes mounts the bearer-token auth endpoints.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", h.handleMe)
	r.Put("/auth/profile", h.handleUpdateProfile)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	user, token, err := h.authService.Register(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			respondError(w, http.StatusConflict, "Email already registered")
			return
		}
		h.logger.ErrorContext(ctx, "Registration failed", "error", err, "email", req.Email)
		respondError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	respondJSON(w, http.StatusCreated, AuthResponse{Token: token, User: toUserProfile(user)})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	user, token, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.ErrorContext(ctx, "Login failed", "error", err, "email", req.Email)
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{Token: token, User: toUserProfile(user)})
}

func (h *AuthHandler) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.googleService.LoginURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		h.logger.WarnContext(ctx, "Google callback state mismatch")
		h.redirectLoginError(w, r)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectLoginError(w, r)
		return
	}

	_, token, err := h.googleService.HandleCallback(ctx, code)
	if err != nil {
		h.logger.ErrorContext(ctx, "Google callback failed", "error", err)
		h.redirectLoginError(w, r)
		return
	}

	http.Redirect(w, r, h.clientURL+"/login/success?token="+url.QueryEscape(token), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) redirectLoginError(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.clientURL+"/login/error", http.StatusTemporaryRedirect)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	user, err := h.authService.GetProfile(ctx, authUser.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to load profile", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	respondJSON(w, http.StatusOK, toUserProfile(user))
}

func (h *AuthHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	user, err := h.authService.UpdateProfile(ctx, authUser.ID, req.Name)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to update profile", "error", err, "user_id", authUser.ID)
		respondError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}
	respondJSON(w, http.StatusOK, toUserProfile(user))
}
