package domain

import "time"

// ArchivedTicket is an immutable copy of a resolved ticket's final state.
// OriginalID back-references the live record that was removed; archival is
// keyed on it so re-running after a partial failure does not duplicate
// the archive.
type ArchivedTicket struct {
	ID               string
	OriginalID       string
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
	ArchivedAt       time.Time
}

// SnapshotOf builds the archive record for a ticket. ID and ArchivedAt are
// assigned by the store on insert.
func SnapshotOf(t *Ticket) *ArchivedTicket {
	return &ArchivedTicket{
		OriginalID:       t.ID,
		TicketID:         t.TicketID,
		CustomerID:       t.CustomerID,
		OrderID:          t.OrderID,
		Issue:            t.Issue,
		IssueEmbedding:   t.IssueEmbedding,
		Status:           t.Status,
		Priority:         t.Priority,
		AssignedTo:       t.AssignedTo,
		Replies:          t.Replies,
		CustomerSnapshot: t.CustomerSnapshot,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}
