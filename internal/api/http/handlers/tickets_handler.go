package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/terratile/support-service/internal/api/dto"
	"github.com/terratile/support-service/internal/domain"
	"github.com/terratile/support-service/internal/service"
	apperrors "github.com/terratile/support-service/pkg/util"
)

// TicketsHandler exposes the ticket intake and lifecycle endpoints.
type TicketsHandler struct {
	intake  *service.IntakeService
	tickets *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(intake *service.IntakeService, tickets *service.TicketService) *TicketsHandler {
	return &TicketsHandler{intake: intake, tickets: tickets}
}

// CreateTicket POST /tickets. Responds 201 with the new ticket, or 200
// with the existing ticket when the submission deduplicated.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	// req.Priority intentionally ignored
	result, err := h.intake.CreateTicket(c.UserContext(), req.CustomerID, req.Issue, req.OrderID)
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"data":   ticketResponse(result.Ticket),
		"reused": result.Reused,
	})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.tickets.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id. The id is either the store-native id or
// the human ticket key.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AddReply POST /tickets/:id/reply.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.AddReply(c.UserContext(), c.Params("id"), req.Message, req.RepliedBy, req.Attachments)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateStatus(c.UserContext(), c.Params("id"), domain.TicketStatus(strings.ToUpper(strings.TrimSpace(req.Status))))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.tickets.DeleteTicket(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	if from := parseTime(c.Query("from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	replies := make([]dto.ReplyResponse, 0, len(ticket.Replies))
	for _, reply := range ticket.Replies {
		replies = append(replies, dto.ReplyResponse{
			Message:     reply.Message,
			RepliedBy:   reply.RepliedBy,
			Attachments: reply.Attachments,
			CreatedAt:   reply.CreatedAt,
		})
	}
	return dto.TicketResponse{
		ID:         ticket.ID,
		TicketID:   ticket.TicketID,
		CustomerID: ticket.CustomerID,
		OrderID:    ticket.OrderID,
		Issue:      ticket.Issue,
		Status:     ticket.Status,
		Priority:   ticket.Priority,
		AssignedTo: ticket.AssignedTo,
		Replies:    replies,
		CustomerSnapshot: dto.CustomerSnapshotResponse{
			Name:  ticket.CustomerSnapshot.Name,
			Email: ticket.CustomerSnapshot.Email,
			Phone: ticket.CustomerSnapshot.Phone,
		},
		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
	}
}
