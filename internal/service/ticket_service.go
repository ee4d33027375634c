package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terratile/support-service/internal/domain"
	"github.com/terratile/support-service/internal/events"
	"github.com/terratile/support-service/internal/moderation"
	"github.com/terratile/support-service/internal/observability"
	"github.com/terratile/support-service/internal/repository"
	"github.com/terratile/support-service/pkg/ticketid"
	apperrors "github.com/terratile/support-service/pkg/util"
)

// TicketService covers the lifecycle of existing tickets: listing,
// lookup, replies, status transitions, and the resolve-time archival.
type TicketService struct {
	tickets    repository.TicketRepository
	archive    repository.ArchiveRepository
	moderation *moderation.Checker
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the lifecycle service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	ArchiveRepo repository.ArchiveRepository
	Moderation  *moderation.Checker
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// TicketListFilter describes agent listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		archive:    deps.ArchiveRepo,
		moderation: deps.Moderation,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// ListTickets returns tickets matching the filter, newest first.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:    filter.Statuses,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// GetTicket accepts either the store-native id or the human ticket key.
// The native-id parse is tried first; a well-formed ticket key falls back
// to the keyed lookup. Anything else is rejected up front.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err == nil {
		return s.tickets.GetByID(ctx, id)
	}
	if ticketid.Valid(id) {
		return s.tickets.GetByTicketID(ctx, id)
	}
	return nil, apperrors.NewValidationError("invalid ticket identifier", nil)
}

// AddReply moderates the message in masking mode, appends it to the
// thread, and forces the ticket to IN_PROGRESS.
func (s *TicketService) AddReply(ctx context.Context, id, message, repliedBy string, attachments []string) (*domain.Ticket, error) {
	message = strings.TrimSpace(message)
	repliedBy = strings.TrimSpace(repliedBy)
	if message == "" || repliedBy == "" {
		return nil, apperrors.NewValidationError("message and repliedBy are required", nil)
	}

	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	reply := domain.Reply{
		Message:     s.moderation.Mask(message),
		RepliedBy:   repliedBy,
		Attachments: attachments,
		CreatedAt:   s.now().UTC(),
	}
	updated, err := s.tickets.AppendReply(ctx, ticket.ID, reply)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketReplied,
		TicketID:  updated.ID,
		TicketKey: updated.TicketID,
		Payload: events.TicketRepliedPayload{
			RepliedBy:   repliedBy,
			BodyPreview: preview(reply.Message, 120),
		},
	})
	return updated, nil
}

// UpdateStatus applies a status transition. Moving to RESOLVED archives
// the ticket and removes it from the live store.
func (s *TicketService) UpdateStatus(ctx context.Context, id string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("invalid status value", nil)
	}
	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   newStatus,
		})
	}

	oldStatus := ticket.Status
	if newStatus == domain.TicketStatusResolved {
		return s.resolveAndArchive(ctx, ticket)
	}

	if err := s.tickets.UpdateStatus(ctx, ticket.ID, newStatus); err != nil {
		return nil, err
	}
	ticket.Status = newStatus
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticket.ID,
		TicketKey: ticket.TicketID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

// resolveAndArchive copies the final state into the archive, then removes
// the live record. Archival is idempotent by original id, and deletion is
// only attempted after archival succeeds, so re-running the transition
// after a partial failure converges instead of losing the snapshot.
func (s *TicketService) resolveAndArchive(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	ticket.Status = domain.TicketStatusResolved

	archived, err := s.archive.Archive(ctx, domain.SnapshotOf(ticket))
	if err != nil {
		s.metrics.Inc("ticket_archive_failed")
		s.logger.Error("archival failed, ticket left in live store",
			zap.String("ticket_key", ticket.TicketID), zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}

	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		s.metrics.Inc("ticket_archive_delete_failed")
		s.logger.Error("ticket archived but live delete failed, duplicate record remains",
			zap.String("ticket_key", ticket.TicketID),
			zap.String("original_id", ticket.ID), zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketArchived,
		TicketID:  ticket.ID,
		TicketKey: ticket.TicketID,
		Payload: events.TicketArchivedPayload{
			OriginalID: archived.OriginalID,
			ArchivedAt: archived.ArchivedAt,
		},
	})
	return ticket, nil
}

// DeleteTicket removes a ticket unconditionally. Used for administrative
// cleanup; archival is not involved.
func (s *TicketService) DeleteTicket(ctx context.Context, id string) error {
	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	return s.tickets.Delete(ctx, ticket.ID)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
