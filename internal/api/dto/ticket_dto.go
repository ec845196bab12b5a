package dto

import (
	"time"

	"github.com/spec-kit/hr-ticketing/internal/domain"
)

// CreateTicketRequest is the multipart form of POST /tickets. Files arrive under "files".
type CreateTicketRequest struct {
	Title       string `form:"title" json:"title" validate:"required,max=200"`
	Description string `form:"description" json:"description" validate:"required,max=5000"`
	Category    string `form:"category" json:"category" validate:"required"`
	Priority    string `form:"priority" json:"priority"`
}

// UpdateTicketRequest carries owner edits. Absent fields are left unchanged.
type UpdateTicketRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Category    *string `json:"category"`
	Priority    *string `json:"priority"`
}

// UpdateStatusRequest is accepted as JSON or multipart. A file may arrive under "file".
type UpdateStatusRequest struct {
	Status      string `form:"status" json:"status" validate:"required"`
	Description string `form:"description" json:"description" validate:"max=2000"`
}

// SubmitterResponse is the denormalized submitter captured at creation.
type SubmitterResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	URL      string `json:"url"`
	FileName string `json:"filename"`
}

// StatusUpdateResponse is one entry of the embedded status trail.
type StatusUpdateResponse struct {
	Status      domain.TicketStatus `json:"status"`
	Description string              `json:"description"`
	Attachment  *AttachmentResponse `json:"attachment,omitempty"`
	UpdatedBy   string              `json:"updated_by"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID            string                 `json:"id"`
	TicketNumber  string                 `json:"ticket_number"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Category      domain.TicketCategory  `json:"category"`
	Priority      domain.TicketPriority  `json:"priority"`
	Status        domain.TicketStatus    `json:"status"`
	SubmittedBy   SubmitterResponse      `json:"submitted_by"`
	Attachments   []AttachmentResponse   `json:"attachments"`
	StatusUpdates []StatusUpdateResponse `json:"status_updates"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	ClosedAt      *time.Time             `json:"closed_at"`
}

// ActivityLogResponse is one audit entry.
type ActivityLogResponse struct {
	ID          string                `json:"id"`
	TicketID    string                `json:"ticket_id"`
	Action      domain.ActivityAction `json:"action"`
	PerformedBy string                `json:"performed_by"`
	Details     string                `json:"details"`
	Timestamp   time.Time             `json:"timestamp"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	attachments := make([]AttachmentResponse, 0, len(t.Attachments))
	for _, att := range t.Attachments {
		attachments = append(attachments, AttachmentResponse{URL: att.URL, FileName: att.FileName})
	}
	updates := make([]StatusUpdateResponse, 0, len(t.StatusUpdates))
	for _, u := range t.StatusUpdates {
		entry := StatusUpdateResponse{
			Status:      u.Status,
			Description: u.Description,
			UpdatedBy:   u.UpdatedBy,
			UpdatedAt:   u.UpdatedAt,
		}
		if u.Attachment != nil {
			entry.Attachment = &AttachmentResponse{URL: u.Attachment.URL, FileName: u.Attachment.FileName}
		}
		updates = append(updates, entry)
	}
	return TicketResponse{
		ID:           t.ID,
		TicketNumber: t.TicketNumber,
		Title:        t.Title,
		Description:  t.Description,
		Category:     t.Category,
		Priority:     t.Priority,
		Status:       t.Status,
		SubmittedBy: SubmitterResponse{
			ID:    t.SubmittedBy,
			Name:  t.SubmittedByName,
			Email: t.SubmittedByEmail,
		},
		Attachments:   attachments,
		StatusUpdates: updates,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		ClosedAt:      t.ClosedAt,
	}
}

// NewActivityLogResponses maps audit entries.
func NewActivityLogResponses(entries []domain.ActivityLogEntry) []ActivityLogResponse {
	out := make([]ActivityLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ActivityLogResponse{
			ID:          e.ID,
			TicketID:    e.TicketID,
			Action:      e.Action,
			PerformedBy: e.PerformedBy,
			Details:     e.Details,
			Timestamp:   e.Timestamp,
		})
	}
	return out
}
