package handlers

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/hr-ticketing/internal/api/dto"
	"github.com/spec-kit/hr-ticketing/internal/auth"
	"github.com/spec-kit/hr-ticketing/internal/domain"
	"github.com/spec-kit/hr-ticketing/internal/service"
	apperrors "github.com/spec-kit/hr-ticketing/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle.
type TicketsHandler struct {
	service   *service.TicketService
	validator *validator.Validate
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, v *validator.Validate) *TicketsHandler {
	return &TicketsHandler{service: ticketService, validator: v}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validateStruct(h.validator, &req); err != nil {
		return err
	}

	input := service.SubmitInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    domain.TicketCategory(req.Category),
		Priority:    domain.TicketPriority(req.Priority),
	}
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["files"] {
			upload, err := readUpload(fh)
			if err != nil {
				return apperrors.NewValidationError("unreadable attachment", map[string]any{"filename": fh.Filename})
			}
			input.Attachments = append(input.Attachments, upload)
		}
	}

	ticket, err := h.service.Submit(c.UserContext(), principal.User.ID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets. Employees only see their own tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	if !principal.Elevated() || c.QueryBool("mine") {
		filter.OwnedBy = &principal.User.ID
	}
	tickets, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if !principal.Elevated() && ticket.SubmittedBy != principal.User.ID {
		return apperrors.NewForbidden("ticket belongs to another user")
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validateStruct(h.validator, &req); err != nil {
		return err
	}

	input := service.UpdateInfoInput{Title: req.Title, Description: req.Description}
	if req.Category != nil {
		category := domain.TicketCategory(*req.Category)
		input.Category = &category
	}
	if req.Priority != nil {
		priority := domain.TicketPriority(*req.Priority)
		input.Priority = &priority
	}
	ticket, err := h.service.UpdateInfo(c.UserContext(), c.Params("id"), principal.User.ID, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validateStruct(h.validator, &req); err != nil {
		return err
	}

	input := service.TransitionInput{
		TicketID:  c.Params("id"),
		Actor:     service.Actor{ID: principal.User.ID, Role: principal.User.Role, Elevated: principal.Elevated()},
		NewStatus: domain.TicketStatus(strings.TrimSpace(req.Status)),
		Note:      req.Description,
	}
	// JSON bodies carry no file; FormFile fails and the transition has no attachment.
	if fh, err := c.FormFile("file"); err == nil {
		upload, err := readUpload(fh)
		if err != nil {
			return apperrors.NewValidationError("unreadable attachment", map[string]any{"filename": fh.Filename})
		}
		input.Attachment = &upload
	}

	ticket, err := h.service.TransitionStatus(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// CloseTicket PATCH /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	actor := service.Actor{ID: principal.User.ID, Role: principal.User.Role, Elevated: principal.Elevated()}
	ticket, err := h.service.Close(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListActivity GET /tickets/:id/activity.
func (h *TicketsHandler) ListActivity(c *fiber.Ctx) error {
	entries, err := h.service.ListActivity(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewActivityLogResponses(entries)})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal, nil
}

// parseTicketFilter reads status, category, startDate and endDate. Other keys are ignored.
func parseTicketFilter(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		s := domain.TicketStatus(status)
		filter.Status = &s
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		cat := domain.TicketCategory(category)
		filter.Category = &cat
	}
	from, err := parseBound("startDate", c.Query("startDate"), false)
	if err != nil {
		return filter, err
	}
	to, err := parseBound("endDate", c.Query("endDate"), true)
	if err != nil {
		return filter, err
	}
	filter.From, filter.To = from, to
	return filter, nil
}
