package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mailflowhq/mailflow/internal/user_service/domain"
	"github.com/mailflowhq/mailflow/internal/user_service/repository"
)

const tokenIssuer = "mailflow"

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type AuthConfig struct {
	JWTSecret      string
	JWTExpiryHours int
}

// Claims is the JWT payload issued on login and verified per request.
type Claims struct {
	UserID uuid.UUID `json:"uid"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// AuthService handles registration, credential login and token
// issuance/verification.
type AuthService struct {
	userRepo repository.UserRepository
	config   AuthConfig
	logger   *slog.Logger

	now func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, config AuthConfig, logger *slog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates a password account. The email must be unused.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*domain.User, string, error) {
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, "", domain.ErrEmailExists
	}
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		s.logger.ErrorContext(ctx, "Error checking email existence", "error", err, "email", email)
		return nil, "", err
	}

	hashed, err := HashPassword(password)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to hash password", "error", err)
		return nil, "", errors.New("failed to process registration")
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: sql.NullString{String: hashed, Valid: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			return nil, "", domain.ErrEmailExists
		}
		s.logger.ErrorContext(ctx, "Failed to create user", "error", err, "email", email)
		return nil, "", errors.New("failed to save registration")
	}

	token, err := s.issueToken(user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sign token", "error", err, "user_id", user.ID)
		return nil, "", errors.New("token generation error")
	}

	s.logger.InfoContext(ctx, "User registered", "user_id", user.ID, "email", email)
	return user, token, nil
}

// Login verifies credentials and issues a token. Lookup and password
// failures collapse to the same error so emails cannot be probed.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, "", domain.ErrInvalidCredentials
		}
		s.logger.ErrorContext(ctx, "Error fetching user by email", "error", err, "email", email)
		return nil, "", err
	}

	if !user.HasPassword() || !CheckPasswordHash(password, user.PasswordHash.String) {
		return nil, "", domain.ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sign token", "error", err, "user_id", user.ID)
		return nil, "", errors.New("token generation error")
	}
	return user, token, nil
}

// GetProfile returns the account for an authenticated user id.
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile changes the display name.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, name string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Name = name
	user.UpdatedAt = s.now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "Failed to update profile", "error", err, "user_id", userID)
		return nil, err
	}
	return user, nil
}

// ValidateToken parses and verifies a bearer token.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrTokenInvalid
	}
	if claims.UserID == uuid.Nil {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (s *AuthService) issueToken(user *domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour * time.Duration(s.config.JWTExpiryHours))),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
}
