package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terratile/support-service/internal/classify"
	"github.com/terratile/support-service/internal/config"
	"github.com/terratile/support-service/internal/domain"
	"github.com/terratile/support-service/internal/embedding"
	"github.com/terratile/support-service/internal/events"
	"github.com/terratile/support-service/internal/identity"
	"github.com/terratile/support-service/internal/moderation"
	"github.com/terratile/support-service/internal/observability"
	"github.com/terratile/support-service/internal/repository"
	apperrors "github.com/terratile/support-service/pkg/util"
)

// IntakeService runs the ticket creation pipeline: validation, moderation,
// identity resolution, semantic dedupe, priority classification, and
// persistence with collision retry.
type IntakeService struct {
	tickets    repository.TicketRepository
	embeddings *embedding.Provider
	moderation *moderation.Checker
	classifier classify.PriorityClassifier
	identity   identity.Resolver
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.DedupeConfig
	now        func() time.Time
}

// IntakeDependencies bundles collaborators for the intake pipeline.
type IntakeDependencies struct {
	TicketRepo repository.TicketRepository
	Embeddings *embedding.Provider
	Moderation *moderation.Checker
	Classifier classify.PriorityClassifier
	Identity   identity.Resolver
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// IntakeResult carries the persisted or reused ticket. Reused lets the
// transport layer distinguish 201-created from 200-deduplicated.
type IntakeResult struct {
	Ticket *domain.Ticket
	Reused bool
}

// NewIntakeService constructs the service.
func NewIntakeService(cfg config.DedupeConfig, deps IntakeDependencies) *IntakeService {
	return &IntakeService{
		tickets:    deps.TicketRepo,
		embeddings: deps.Embeddings,
		moderation: deps.Moderation,
		classifier: deps.Classifier,
		identity:   deps.Identity,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateTicket runs the full intake pipeline. A near-duplicate submission
// from the same customer inside the dedupe window returns the existing
// ticket instead of creating a new one, making the endpoint semantically
// idempotent without a client-supplied key.
func (s *IntakeService) CreateTicket(ctx context.Context, customerIdentifier, issue string, orderID *string) (*IntakeResult, error) {
	customerIdentifier = strings.TrimSpace(customerIdentifier)
	issue = strings.TrimSpace(issue)
	if customerIdentifier == "" || issue == "" {
		return nil, apperrors.NewValidationError("customerId and issue are required", nil)
	}

	verdict := s.moderation.Check(ctx, issue)
	if !verdict.OK {
		s.metrics.Inc("intake_moderation_rejected")
		return nil, apperrors.NewValidationError("message violates content guidelines",
			map[string]any{"reason": verdict.Reason})
	}

	customer, err := s.identity.Resolve(ctx, customerIdentifier)
	if err != nil {
		// Resolution failure is a client error: no ticket is ever created
		// for an identity the provider does not know.
		s.logger.Info("identity resolution failed", zap.Error(err))
		return nil, apperrors.NewValidationError("unknown customer", nil)
	}

	vec := s.embeddings.Embed(ctx, issue)

	existing, similarity, err := s.findDuplicate(ctx, customer.UID, vec, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.Inc("intake_dedupe_hit")
		s.logger.Info("duplicate submission merged into existing ticket",
			zap.String("ticket_key", existing.TicketID),
			zap.Float64("similarity", similarity))
		s.publishEvent(ctx, events.Event{
			Type:      events.EventTicketDeduplicated,
			TicketID:  existing.ID,
			TicketKey: existing.TicketID,
			Payload: events.TicketDeduplicatedPayload{
				CustomerID: customer.UID,
				Similarity: similarity,
			},
		})
		return &IntakeResult{Ticket: existing, Reused: true}, nil
	}

	priority := s.classifier.Classify(ctx, issue, customer.Snapshot())

	ticket := &domain.Ticket{
		CustomerID:       customer.UID,
		OrderID:          orderID,
		Issue:            issue,
		IssueEmbedding:   vec,
		Status:           domain.TicketStatusOpen,
		Priority:         priority,
		Replies:          []domain.Reply{},
		CustomerSnapshot: customer.Snapshot(),
	}

	attempts, err := s.persistWithRetry(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		TicketKey: ticket.TicketID,
		Payload: events.TicketCreatedPayload{
			CustomerID: ticket.CustomerID,
			OrderID:    ticket.OrderID,
			Priority:   ticket.Priority,
			Attempts:   attempts,
		},
	})
	return &IntakeResult{Ticket: ticket, Reused: false}, nil
}

// findDuplicate scores recent open tickets of the same customer against
// the new embedding, most recent first. The first candidate crossing the
// similarity threshold wins; nothing is scored after a match.
func (s *IntakeService) findDuplicate(ctx context.Context, customerID string, vec []float64, orderID *string) (*domain.Ticket, float64, error) {
	since := s.now().Add(-s.cfg.Window())
	candidates, err := s.tickets.ListRecentActiveByCustomer(ctx, customerID, since, s.cfg.MaxCandidates)
	if err != nil {
		return nil, 0, err
	}
	for i := range candidates {
		candidate := &candidates[i]
		// Order identity is a stronger signal than text similarity: the
		// same complaint against a different order is a distinct ticket.
		if orderID != nil && candidate.OrderID != nil && *orderID != *candidate.OrderID {
			continue
		}
		candVec := candidate.IssueEmbedding
		if len(candVec) == 0 {
			candVec = s.embeddings.Embed(ctx, candidate.Issue)
			if err := s.tickets.UpdateEmbedding(ctx, candidate.ID, candVec); err != nil {
				// best-effort backfill, the dedupe check proceeds regardless
				s.logger.Warn("embedding backfill failed",
					zap.String("ticket_key", candidate.TicketID), zap.Error(err))
			}
		}
		if similarity := embedding.Cosine(vec, candVec); similarity >= s.cfg.SimilarityThreshold {
			return candidate, similarity, nil
		}
	}
	return nil, 0, nil
}

// persistWithRetry inserts the ticket, drawing a fresh random identifier
// on each attempt. Collisions are astronomically rare at this entropy, so
// the bound is a safety net rather than a correctness mechanism.
func (s *IntakeService) persistWithRetry(ctx context.Context, ticket *domain.Ticket) (int, error) {
	maxAttempts := s.cfg.MaxCreateAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.tickets.Create(ctx, ticket)
		if err == nil {
			return attempt, nil
		}
		if errors.Is(err, repository.ErrDuplicateTicketID) {
			s.metrics.Inc("intake_ticket_id_collision")
			s.logger.Warn("ticket id collision, regenerating",
				zap.Int("attempt", attempt), zap.String("ticket_key", ticket.TicketID))
			continue
		}
		return attempt, apperrors.NewInternalError(err)
	}
	s.metrics.Inc("intake_ticket_id_retries_exhausted")
	s.logger.Error("ticket id retries exhausted", zap.Int("attempts", maxAttempts))
	return maxAttempts, apperrors.NewInternalError(errors.New("ticket id retries exhausted"))
}

func (s *IntakeService) publishEvent(ctx context.Context, event events.Event) {
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
