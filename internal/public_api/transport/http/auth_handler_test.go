package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mailflowhq/mailflow/internal/public_api/middleware"
	"github.com/mailflowhq/mailflow/internal/user_service/domain"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, email, name, password string) (*domain.User, string, error) {
	args := m.Called(ctx, email, name, password)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*domain.User), args.String(1), args.Error(2)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*domain.User), args.String(1), args.Error(2)
}

func (m *MockAuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, name string) (*domain.User, error) {
	args := m.Called(ctx, userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockGoogleService struct {
	mock.Mock
}

func (m *MockGoogleService) LoginURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockGoogleService) HandleCallback(ctx context.Context, code string) (*domain.User, string, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*domain.User), args.String(1), args.Error(2)
}

func newAuthRouter(authSvc *MockAuthService, googleSvc *MockGoogleService) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAuthHandler(authSvc, googleSvc, "http://localhost:3001", logger)
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	h.RegisterProtectedRoutes(r)
	return r
}

func postJSON(router chi.Router, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRegister_Success(t *testing.T) {
	authSvc := new(MockAuthService)
	router := newAuthRouter(authSvc, new(MockGoogleService))

	user := &domain.User{ID: uuid.New(), Email: "new@example.com", Name: "New User"}
	authSvc.On("Register", mock.Anything, "new@example.com", "New User", "secret123").
		Return(user, "signed-token", nil).Once()

	rec := postJSON(router, "/auth/register", RegisterRequest{
		Email: "new@example.com", Name: "New User", Password: "secret123",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "signed-token", resp.Token)
	assert.Equal(t, user.ID.String(), resp.User.ID)
	authSvc.AssertExpectations(t)
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	authSvc := new(MockAuthService)
	router := newAuthRouter(authSvc, new(MockGoogleService))

	authSvc.On("Register", mock.Anything, "taken@example.com", "Name", "secret123").
		Return(nil, "", domain.ErrEmailExists).Once()

	rec := postJSON(router, "/auth/register", RegisterRequest{
		Email: "taken@example.com", Name: "Name", Password: "secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRegister_ShortPassword(t *testing.T) {
	authSvc := new(MockAuthService)
	router := newAuthRouter(authSvc, new(MockGoogleService))

	rec := postJSON(router, "/auth/register", RegisterRequest{
		Email: "new@example.com", Name: "Name", Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	authSvc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	authSvc := new(MockAuthService)
	router := newAuthRouter(authSvc, new(MockGoogleService))

	authSvc.On("Login", mock.Anything, "user@example.com", "wrong-pass").
		Return(nil, "", domain.ErrInvalidCredentials).Once()

	rec := postJSON(router, "/auth/login", LoginRequest{
		Email: "user@example.com", Password: "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGoogleLogin_RedirectsWithStateCookie(t *testing.T) {
	googleSvc := new(MockGoogleService)
	router := newAuthRouter(new(MockAuthService), googleSvc)

	googleSvc.On("LoginURL", mock.AnythingOfType("string")).
		Return("https://accounts.google.com/o/oauth2/auth?state=x").Once()

	req := httptest.NewRequest(http.MethodGet, "/auth/google", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "accounts.google.com")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, oauthStateCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestHandleGoogleCallback_StateMismatchRedirectsToError(t *testing.T) {
	googleSvc := new(MockGoogleService)
	router := newAuthRouter(new(MockAuthService), googleSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=attacker&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "legit"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "http://localhost:3001/login/error", rec.Header().Get("Location"))
	googleSvc.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything)
}

func TestHandleGoogleCallback_Success(t *testing.T) {
	googleSvc := new(MockGoogleService)
	router := newAuthRouter(new(MockAuthService), googleSvc)

	user := &domain.User{ID: uuid.New(), Email: "g@example.com"}
	googleSvc.On("HandleCallback", mock.Anything, "auth-code").
		Return(user, "signed-token", nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=legit&code=auth-code", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "legit"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "http://localhost:3001/login/success?token=signed-token", rec.Header().Get("Location"))
}

func TestHandleMe_ReturnsProfile(t *testing.T) {
	authSvc := new(MockAuthService)
	router := newAuthRouter(authSvc, new(MockGoogleService))

	userID := uuid.New()
	user := &domain.User{
		ID:      userID,
		Email:   "me@example.com",
		Name:    "Me",
		Picture: sql.NullString{String: "https://p/img", Valid: true},
	}
	authSvc.On("GetProfile", mock.Anything, userID).Return(user, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	ctx := context.WithValue(req.Context(), middleware.AuthenticatedUserContextKey,
		middleware.AuthenticatedUser{ID: userID, Email: "me@example.com"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UserProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "me@example.com", resp.Email)
	assert.Equal(t, "https://p/img", resp.Avatar)
}
