package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mailflowhq/mailflow/internal/user_service/domain"
	"github.com/mailflowhq/mailflow/internal/user_service/repository"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// googleProfile is the subset of Google's userinfo response we use.
type googleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleOAuthService signs users in through Google. First sign-in
// creates the account; later sign-ins attach to the existing account
// by email.
type GoogleOAuthService struct {
	userRepo repository.UserRepository
	auth     *AuthService
	oauth    *oauth2.Config
	logger   *slog.Logger

	// fetchProfile is swappable in tests.
	fetchProfile func(ctx context.Context, token *oauth2.Token) (*googleProfile, error)
}

func NewGoogleOAuthService(userRepo repository.UserRepository, auth *AuthService, cfg GoogleOAuthConfig, logger *slog.Logger) *GoogleOAuthService {
	s := &GoogleOAuthService{
		userRepo: userRepo,
		auth:     auth,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		logger: logger,
	}
	s.fetchProfile = s.fetchProfileHTTP
	return s
}

// LoginURL returns the Google consent page URL for the given CSRF
// state token.
func (s *GoogleOAuthService) LoginURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// HandleCallback exchanges the authorization code, loads the Google
// profile and signs the matching account in, creating it on first use.
func (s *GoogleOAuthService) HandleCallback(ctx context.Context, code string) (*domain.User, string, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.ErrorContext(ctx, "Google code exchange failed", "error", err)
		return nil, "", fmt.Errorf("exchange authorization code: %w", err)
	}

	profile, err := s.fetchProfile(ctx, token)
	if err != nil {
		s.logger.ErrorContext(ctx, "Google userinfo fetch failed", "error", err)
		return nil, "", fmt.Errorf("fetch google profile: %w", err)
	}
	if profile.Email == "" {
		return nil, "", errors.New("google profile has no email")
	}

	user, err := s.upsertUser(ctx, profile)
	if err != nil {
		return nil, "", err
	}

	jwtToken, err := s.auth.issueToken(user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sign token", "error", err, "user_id", user.ID)
		return nil, "", errors.New("token generation error")
	}
	return user, jwtToken, nil
}

func (s *GoogleOAuthService) upsertUser(ctx context.Context, profile *googleProfile) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, profile.Email)
	if err == nil {
		// Existing account: link the Google identity if it isn't yet.
		changed := false
		if !user.GoogleID.Valid {
			user.GoogleID = sql.NullString{String: profile.ID, Valid: true}
			changed = true
		}
		if profile.Picture != "" && user.Picture.String != profile.Picture {
			user.Picture = sql.NullString{String: profile.Picture, Valid: true}
			changed = true
		}
		if changed {
			user.UpdatedAt = s.auth.now().UTC()
			if err := s.userRepo.Update(ctx, user); err != nil {
				s.logger.ErrorContext(ctx, "Failed to link Google identity", "error", err, "user_id", user.ID)
				return nil, err
			}
		}
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	now := s.auth.now().UTC()
	user = &domain.User{
		ID:        uuid.New(),
		Email:     profile.Email,
		Name:      profile.Name,
		GoogleID:  sql.NullString{String: profile.ID, Valid: true},
		Picture:   sql.NullString{String: profile.Picture, Valid: profile.Picture != ""},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "Failed to create user from Google profile", "error", err, "email", profile.Email)
		return nil, err
	}
	s.logger.InfoContext(ctx, "User created via Google sign-in", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func (s *GoogleOAuthService) fetchProfileHTTP(ctx context.Context, token *oauth2.Token) (*googleProfile, error) {
	client := s.oauth.Client(ctx, token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &profile, nil
}
