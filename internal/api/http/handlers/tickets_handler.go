package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	tickets TicketRegistry
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets TicketRegistry) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	views, err := h.tickets.ListTickets(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(views))
	for i := range views {
		items = append(items, ticketResponse(&views[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	view, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(view)})
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, msg, err := h.tickets.CreateTicket(c.UserContext(), service.TicketCreateInput{
		ReporterID: req.User,
		AssigneeID: req.AssignedUser,
		Title:      req.Title,
		Body:       req.Body,
		Status:     req.Status,
		Type:       req.Type,
		Category:   req.Category,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.CreatedTicketResponse{
		Message:  msg,
		ID:       ticket.ID,
		TicketID: ticket.TicketNumber,
	})
}

// UpdateTicket PATCH /tickets.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.tickets.UpdateTicket(c.UserContext(), service.TicketUpdateInput{
		ID:         req.ID,
		ReporterID: req.Reporter(),
		AssigneeID: req.AssignedTo,
		Title:      req.Title,
		Body:       req.Body,
		Status:     req.Status,
		Type:       req.Type,
		Category:   req.Category,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: msg})
}

// DeleteTicket DELETE /tickets.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	var req dto.DeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.tickets.DeleteTicket(c.UserContext(), req.ID)
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: msg})
}

func ticketResponse(view *domain.TicketView) dto.TicketResponse {
	return dto.TicketResponse{
		ID:               view.ID,
		TicketID:         view.TicketNumber,
		User:             view.ReporterID,
		AssignedUser:     view.AssigneeID,
		Username:         view.ReporterUsername,
		AssignedUsername: view.AssigneeUsername,
		Title:            view.Title,
		Body:             view.Body,
		Status:           view.Status,
		Type:             view.Type,
		Category:         view.Category,
		CreatedAt:        view.CreatedAt,
		UpdatedAt:        view.UpdatedAt,
	}
}
