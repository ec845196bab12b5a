package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/hr-ticketing/internal/domain"
	"github.com/spec-kit/hr-ticketing/internal/events"
	"github.com/spec-kit/hr-ticketing/internal/observability"
	"github.com/spec-kit/hr-ticketing/internal/repository"
	"github.com/spec-kit/hr-ticketing/internal/storage"
	"github.com/spec-kit/hr-ticketing/pkg/util/errorutil"
)

const closeNote = "Ticket closed"

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	activity    repository.ActivityLogRepository
	identities  IdentityResolver
	attachments storage.AttachmentStore
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	ActivityRepo repository.ActivityLogRepository
	Identities   IdentityResolver
	Attachments  storage.AttachmentStore
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// Actor is the caller of a lifecycle operation. Elevated is decided by the auth layer.
type Actor struct {
	ID       string
	Role     domain.UserRole
	Elevated bool
}

// AttachmentUpload is an uploaded file awaiting validation.
type AttachmentUpload struct {
	FileName string
	MimeType string
	Data     []byte
}

// SubmitInput describes a new ticket.
type SubmitInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
	Attachments []AttachmentUpload
}

// UpdateInfoInput carries the owner-editable fields. Nil fields are left unchanged.
type UpdateInfoInput struct {
	Title       *string
	Description *string
	Category    *domain.TicketCategory
	Priority    *domain.TicketPriority
}

// TransitionInput describes a status change.
type TransitionInput struct {
	TicketID   string
	Actor      Actor
	NewStatus  domain.TicketStatus
	Note       string
	Attachment *AttachmentUpload
}

// TicketListFilter is shared by listing and reporting.
// The date range applies only when both bounds are set.
type TicketListFilter struct {
	Status   *domain.TicketStatus
	Category *domain.TicketCategory
	OwnedBy  *string
	From     *time.Time
	To       *time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		activity:    deps.ActivityRepo,
		identities:  deps.Identities,
		attachments: deps.Attachments,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit creates a Pending ticket owned by actorID.
func (s *TicketService) Submit(ctx context.Context, actorID string, input SubmitInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if err := validateTicketFields(title, description, input.Category, priority); err != nil {
		return nil, err
	}

	identity, err := s.identities.Resolve(ctx, actorID)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	if identity == nil {
		return nil, errorutil.NewNotFound("user", map[string]any{"id": actorID})
	}

	for i, upload := range input.Attachments {
		if _, err := storage.CheckImage(upload.MimeType, upload.Data); err != nil {
			return nil, errorutil.NewValidationError("unsupported attachment type", map[string]any{
				"index":    i,
				"filename": upload.FileName,
				"allowed":  storage.AllowedImageTypes,
			})
		}
	}

	attachments := make([]domain.Attachment, 0, len(input.Attachments))
	for _, upload := range input.Attachments {
		url, err := s.attachments.Store(ctx, upload.FileName, upload.Data, upload.MimeType)
		if err != nil {
			s.discardAttachments(ctx, attachments)
			return nil, errorutil.NewInternalError(err)
		}
		attachments = append(attachments, domain.Attachment{URL: url, FileName: upload.FileName})
	}

	count, err := s.tickets.Count(ctx)
	if err != nil {
		s.discardAttachments(ctx, attachments)
		return nil, errorutil.NewInternalError(err)
	}

	now := s.now().UTC()
	ticket := &domain.Ticket{
		TicketNumber:     formatTicketNumber(count + 1),
		Title:            title,
		Description:      description,
		Category:         input.Category,
		Priority:         priority,
		Status:           domain.TicketStatusPending,
		SubmittedBy:      identity.ID,
		SubmittedByEmail: identity.Email,
		SubmittedByName:  identity.DisplayName,
		Attachments:      attachments,
		StatusUpdates:    []domain.StatusUpdate{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.discardAttachments(ctx, attachments)
		return nil, errorutil.NewInternalError(err)
	}

	s.publish(ctx, events.Event{
		Type:         events.EventTicketCreated,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Actor:        events.Actor{UserID: actorID},
		Payload: events.TicketCreatedPayload{
			Title:    ticket.Title,
			Category: ticket.Category,
			Priority: ticket.Priority,
		},
	})
	return ticket, nil
}

// UpdateInfo lets the owner edit title, description, category and priority of an open ticket.
func (s *TicketService) UpdateInfo(ctx context.Context, ticketID, actorID string, input UpdateInfoInput) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, errorutil.NewInvalidState("closed tickets cannot be edited", map[string]any{"id": ticket.ID})
	}
	if ticket.SubmittedBy != actorID {
		return nil, errorutil.NewForbidden("only the submitter can edit this ticket")
	}

	title, description := ticket.Title, ticket.Description
	category, priority := ticket.Category, ticket.Priority
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		category = *input.Category
	}
	if input.Priority != nil {
		priority = *input.Priority
	}
	if err := validateTicketFields(title, description, category, priority); err != nil {
		return nil, err
	}

	ticket.Title = title
	ticket.Description = description
	ticket.Category = category
	ticket.Priority = priority
	ticket.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// TransitionStatus moves a ticket to a new status. Only elevated actors may call it,
// and Closed tickets accept no further transitions.
func (s *TicketService) TransitionStatus(ctx context.Context, input TransitionInput) (*domain.Ticket, error) {
	if !input.Actor.Elevated {
		return nil, errorutil.NewForbidden("insufficient role to change ticket status")
	}
	if !input.NewStatus.Valid() {
		return nil, errorutil.NewValidationError("invalid status", map[string]any{
			"status":  input.NewStatus,
			"allowed": domain.TicketStatuses,
		})
	}
	ticket, err := s.load(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, errorutil.NewInvalidState("ticket is already closed", map[string]any{"id": ticket.ID})
	}

	var attachment *domain.Attachment
	if input.Attachment != nil {
		upload := input.Attachment
		if _, err := storage.CheckImage(upload.MimeType, upload.Data); err != nil {
			return nil, errorutil.NewValidationError("unsupported attachment type", map[string]any{
				"filename": upload.FileName,
				"allowed":  storage.AllowedImageTypes,
			})
		}
		url, err := s.attachments.Store(ctx, upload.FileName, upload.Data, upload.MimeType)
		if err != nil {
			return nil, errorutil.NewInternalError(err)
		}
		attachment = &domain.Attachment{URL: url, FileName: upload.FileName}
	}

	note := strings.TrimSpace(input.Note)
	if note == "" {
		note = fmt.Sprintf("Status changed to %s", input.NewStatus)
	}

	now := s.now().UTC()
	oldStatus := ticket.Status
	ticket.Status = input.NewStatus
	ticket.StatusUpdates = append(ticket.StatusUpdates, domain.StatusUpdate{
		Status:      input.NewStatus,
		Description: note,
		Attachment:  attachment,
		UpdatedBy:   input.Actor.ID,
		UpdatedAt:   now,
	})
	if input.NewStatus == domain.TicketStatusClosed {
		ticket.ClosedAt = &now
	}
	ticket.UpdatedAt = now

	if err := s.save(ctx, ticket); err != nil {
		if attachment != nil {
			s.discardAttachments(ctx, []domain.Attachment{*attachment})
		}
		return nil, err
	}
	s.metrics.RecordTransition(string(oldStatus), string(ticket.Status))

	actor := events.Actor{UserID: input.Actor.ID, Role: input.Actor.Role}
	if ticket.Status == domain.TicketStatusClosed {
		s.publish(ctx, events.Event{
			Type:         events.EventTicketClosed,
			TicketID:     ticket.ID,
			TicketNumber: ticket.TicketNumber,
			Actor:        actor,
		})
	}
	s.publish(ctx, events.Event{
		Type:         events.EventTicketStatusChanged,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Actor:        actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Note:      note,
		},
	})
	return ticket, nil
}

// Close transitions a ticket to Closed.
func (s *TicketService) Close(ctx context.Context, ticketID string, actor Actor) (*domain.Ticket, error) {
	return s.TransitionStatus(ctx, TransitionInput{
		TicketID:  ticketID,
		Actor:     actor,
		NewStatus: domain.TicketStatusClosed,
		Note:      closeNote,
	})
}

// Get returns a ticket by id.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.load(ctx, ticketID)
}

// List returns tickets matching filter, newest first.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Status:      filter.Status,
		Category:    filter.Category,
		SubmittedBy: filter.OwnedBy,
	}
	if filter.From != nil && filter.To != nil {
		repoFilter.CreatedBetween = &repository.TimeRange{From: *filter.From, To: *filter.To}
	}
	tickets, err := s.tickets.FindMany(ctx, repoFilter)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return tickets, nil
}

// ListActivity returns the audit trail of a ticket, oldest first.
func (s *TicketService) ListActivity(ctx context.Context, ticketID string) ([]domain.ActivityLogEntry, error) {
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.activity.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return entries, nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorutil.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, errorutil.NewInternalError(err)
	}
	return ticket, nil
}

func (s *TicketService) save(ctx context.Context, ticket *domain.Ticket) error {
	if err := s.tickets.Save(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errorutil.NewNotFound("ticket", map[string]any{"id": ticket.ID})
		}
		return errorutil.NewInternalError(err)
	}
	return nil
}

func (s *TicketService) discardAttachments(ctx context.Context, attachments []domain.Attachment) {
	for _, att := range attachments {
		if err := s.attachments.Remove(context.WithoutCancel(ctx), att.URL); err != nil {
			s.logger.Warn("failed to remove orphaned attachment", zap.String("url", att.URL), zap.Error(err))
		}
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	s.dispatcher.Publish(ctx, event)
}

func validateTicketFields(title, description string, category domain.TicketCategory, priority domain.TicketPriority) error {
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if !category.Valid() {
		details["category"] = fmt.Sprintf("must be one of %v", domain.TicketCategories)
	}
	if !priority.Valid() {
		details["priority"] = fmt.Sprintf("must be one of %v", domain.TicketPriorities)
	}
	if len(details) > 0 {
		return errorutil.NewValidationError("invalid ticket", details)
	}
	return nil
}

func formatTicketNumber(n int64) string {
	return fmt.Sprintf("TKT-%06d", n)
}
