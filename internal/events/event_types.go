package events

import (
	"time"

	"github.com/terratile/support-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketDeduplicated  EventType = "ticket_deduplicated"
	EventTicketReplied       EventType = "ticket_replied"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketArchived      EventType = "ticket_archived"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	TicketKey string      `json:"ticket_key"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CustomerID string                `json:"customer_id"`
	OrderID    *string               `json:"order_id,omitempty"`
	Priority   domain.TicketPriority `json:"priority"`
	Attempts   int                   `json:"attempts"`
}

// TicketDeduplicatedPayload payload.
type TicketDeduplicatedPayload struct {
	CustomerID string  `json:"customer_id"`
	Similarity float64 `json:"similarity"`
}

// TicketRepliedPayload payload.
type TicketRepliedPayload struct {
	RepliedBy   string `json:"replied_by"`
	BodyPreview string `json:"body_preview"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketArchivedPayload payload.
type TicketArchivedPayload struct {
	OriginalID string    `json:"original_id"`
	ArchivedAt time.Time `json:"archived_at"`
}
