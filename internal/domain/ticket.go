package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. RESOLVED is
// terminal: the live record is archived and removed on that transition.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
)

// TicketPriority enumerates urgency levels. Priority is assigned exactly
// once at creation by the classifier, never by the caller.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// Reply is a single message appended to a ticket thread.
type Reply struct {
	Message     string    `json:"message"`
	RepliedBy   string    `json:"replied_by"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CustomerSnapshot is the denormalized contact info captured from the
// identity provider at creation time. It is never re-synced.
type CustomerSnapshot struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Ticket is the aggregate for customer support requests.
type Ticket struct {
	ID               string
	TicketID         string
	CustomerID       string
	OrderID          *string
	Issue            string
	IssueEmbedding   []float64
	Status           TicketStatus
	Priority         TicketPriority
	AssignedTo       *string
	Replies          []Reply
	CustomerSnapshot CustomerSnapshot
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known ticket priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusResolved},
	TicketStatusInProgress: {TicketStatusResolved},
	TicketStatusResolved:   {},
}

// CanTransition reports whether a ticket may move from current to next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
