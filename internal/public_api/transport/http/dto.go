package http

import (
	"github.com/mailflowhq/mailflow/internal/user_service/domain"
)

// RegisterRequest defines the structure for user registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,min=8,max=100"`
}

// LoginRequest defines the structure for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned on successful register/login.
type AuthResponse struct {
	Token string              `json:"token"`
	User  UserProfileResponse `json:"user"`
}

// UserProfileResponse defines the structure for the /auth/me endpoint.
type UserProfileResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// UpdateProfileRequest changes mutable profile fields.
type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

func toUserProfile(user *domain.User) UserProfileResponse {
	return UserProfileResponse{
		ID:     user.ID.String(),
		Email:  user.Email,
		Name:   user.Name,
		Avatar: user.Picture.String,
	}
}
