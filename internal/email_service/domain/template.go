package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Template is a reusable, owner-scoped message draft. Placeholders in
// the body are stored verbatim; no rendering happens server-side.
type Template struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Name      string         `json:"name"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	HTML      sql.NullString `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
