package http

import (
	"time"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
)

// TemplateRequest DTO for creating and updating templates.
type TemplateRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=100"`
	Subject string `json:"subject" validate:"required,min=1"`
	Body    string `json:"body" validate:"required,min=1"`
	HTML    string `json:"html,omitempty"`
}

// TemplateResponse is one stored template.
type TemplateResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	HTML      string    `json:"html,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTemplateResponse(tmpl *domain.Template) TemplateResponse {
	return TemplateResponse{
		ID:        tmpl.ID.String(),
		Name:      tmpl.Name,
		Subject:   tmpl.Subject,
		Body:      tmpl.Body,
		HTML:      tmpl.HTML.String,
		CreatedAt: tmpl.CreatedAt,
		UpdatedAt: tmpl.UpdatedAt,
	}
}
