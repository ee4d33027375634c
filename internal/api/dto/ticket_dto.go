package dto

import (
	"time"

	"github.com/terratile/support-service/internal/domain"
)

// CreateTicketRequest payload. Priority is parsed so older storefront
// clients that still send it don't fail, but the value is never honored:
// priority always comes from the classifier.
type CreateTicketRequest struct {
	CustomerID string  `json:"customerId"`
	Issue      string  `json:"issue"`
	OrderID    *string `json:"orderId"`
	Priority   string  `json:"priority"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	Message     string   `json:"message"`
	RepliedBy   string   `json:"repliedBy"`
	Attachments []string `json:"attachments"`
}

// StatusUpdateRequest payload.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// ReplyResponse represents a thread entry.
type ReplyResponse struct {
	Message     string    `json:"message"`
	RepliedBy   string    `json:"repliedBy"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CustomerSnapshotResponse is the denormalized contact info.
type CustomerSnapshotResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// TicketResponse provides full ticket info. The issue embedding is an
// internal dedupe artifact and is never exposed.
type TicketResponse struct {
	ID               string                   `json:"id"`
	TicketID         string                   `json:"ticketId"`
	CustomerID       string                   `json:"customerId"`
	OrderID          *string                  `json:"orderId,omitempty"`
	Issue            string                   `json:"issue"`
	Status           domain.TicketStatus      `json:"status"`
	Priority         domain.TicketPriority    `json:"priority"`
	AssignedTo       *string                  `json:"assignedTo,omitempty"`
	Replies          []ReplyResponse          `json:"replies"`
	CustomerSnapshot CustomerSnapshotResponse `json:"customer"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}
