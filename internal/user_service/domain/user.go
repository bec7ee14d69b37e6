package domain

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
)

// User is an account holder. Accounts created through Google OAuth
// have no password hash; PasswordHash.Valid distinguishes the two.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash sql.NullString
	GoogleID     sql.NullString
	Picture      sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account supports password login.
func (u *User) HasPassword() bool {
	return u.PasswordHash.Valid && u.PasswordHash.String != ""
}
