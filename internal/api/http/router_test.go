package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terratile/support-service/internal/api/dto"
	"github.com/terratile/support-service/internal/api/http/handlers"
	"github.com/terratile/support-service/internal/auth"
	"github.com/terratile/support-service/internal/config"
	"github.com/terratile/support-service/internal/domain"
	"github.com/terratile/support-service/internal/embedding"
	"github.com/terratile/support-service/internal/identity"
	"github.com/terratile/support-service/internal/moderation"
	"github.com/terratile/support-service/internal/observability"
	"github.com/terratile/support-service/internal/repository"
	"github.com/terratile/support-service/internal/service"
	"github.com/terratile/support-service/pkg/ticketid"
)

type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.TicketID = ticketid.New()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now().UTC()
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *memTicketRepo) GetByTicketID(_ context.Context, key string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.TicketID == key {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) ListRecentActiveByCustomer(_ context.Context, customerID string, since time.Time, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.CustomerID == customerID && ticket.Status != domain.TicketStatusResolved && !ticket.CreatedAt.Before(since) {
			result = append(result, *ticket)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, _ repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		result = append(result, *ticket)
	}
	return result, nil
}

func (r *memTicketRepo) UpdateEmbedding(_ context.Context, id string, vec []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket, ok := r.tickets[id]; ok {
		ticket.IssueEmbedding = vec
		return nil
	}
	return pgx.ErrNoRows
}

func (r *memTicketRepo) AppendReply(_ context.Context, id string, reply domain.Reply) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	ticket.Replies = append(ticket.Replies, reply)
	ticket.Status = domain.TicketStatusInProgress
	copied := *ticket
	return &copied, nil
}

func (r *memTicketRepo) UpdateStatus(_ context.Context, id string, status domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket, ok := r.tickets[id]; ok {
		ticket.Status = status
		return nil
	}
	return pgx.ErrNoRows
}

func (r *memTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

type memArchiveRepo struct {
	mu           sync.Mutex
	byOriginalID map[string]*domain.ArchivedTicket
}

func (r *memArchiveRepo) Archive(_ context.Context, snapshot *domain.ArchivedTicket) (*domain.ArchivedTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byOriginalID[snapshot.OriginalID]; ok {
		return existing, nil
	}
	snapshot.ID = uuid.NewString()
	snapshot.ArchivedAt = time.Now().UTC()
	r.byOriginalID[snapshot.OriginalID] = snapshot
	return snapshot, nil
}

func (r *memArchiveRepo) GetByOriginalID(_ context.Context, originalID string) (*domain.ArchivedTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if archived, ok := r.byOriginalID[originalID]; ok {
		return archived, nil
	}
	return nil, pgx.ErrNoRows
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, identifier string) (*domain.Customer, error) {
	if identifier == "ada@example.com" || identifier == "u123" {
		return &domain.Customer{UID: "u123", Name: "Ada", Email: "ada@example.com"}, nil
	}
	return nil, identity.ErrNotFound
}

type stubClassifier struct{ priority domain.TicketPriority }

func (c stubClassifier) Classify(context.Context, string, domain.CustomerSnapshot) domain.TicketPriority {
	return c.priority
}

func newTestApp(t *testing.T) (*fiber.App, *auth.TokenManager) {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	repo := newMemTicketRepo()
	archive := &memArchiveRepo{byOriginalID: make(map[string]*domain.ArchivedTicket)}
	checker := moderation.NewChecker(config.ModerationConfig{FailMode: "open"}, logger)
	provider := embedding.NewProvider(
		config.EmbeddingConfig{CacheTTLMinutes: 15, CooldownMinutes: 10},
		embedding.NewMemoryCache(15*time.Minute), logger, metrics)

	intake := service.NewIntakeService(
		config.DedupeConfig{WindowMinutes: 10, SimilarityThreshold: 0.88, MaxCandidates: 5, MaxCreateAttempts: 5},
		service.IntakeDependencies{
			TicketRepo: repo,
			Embeddings: provider,
			Moderation: checker,
			Classifier: stubClassifier{priority: domain.TicketPriorityHigh},
			Identity:   stubResolver{},
			Logger:     logger,
			Metrics:    metrics,
		})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repo,
		ArchiveRepo: archive,
		Moderation:  checker,
		Logger:      logger,
		Metrics:     metrics,
	})

	tokens := auth.NewTokenManager("test-secret")
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:    handlers.NewHealthHandler("support-service", "test", nil, nil),
		Tickets:   handlers.NewTicketsHandler(intake, tickets),
		AgentAuth: auth.NewAgentAuth(tokens),
	})
	return app, tokens
}

type ticketEnvelope struct {
	Data   dto.TicketResponse `json:"data"`
	Reused bool               `json:"reused"`
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func doJSON(t *testing.T, app *fiber.App, method, target, token string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, raw
}

func TestCreateTicketThenDeduplicate(t *testing.T) {
	app, _ := newTestApp(t)
	payload := fiber.Map{"customerId": "ada@example.com", "issue": "half the marble tiles arrived chipped"}

	resp, raw := doJSON(t, app, fiber.MethodPost, "/tickets", "", payload)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	var first ticketEnvelope
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.False(t, first.Reused)
	assert.True(t, ticketid.Valid(first.Data.TicketID))
	assert.Equal(t, "u123", first.Data.CustomerID)
	assert.Equal(t, domain.TicketStatusOpen, first.Data.Status)

	resp, raw = doJSON(t, app, fiber.MethodPost, "/tickets", "", payload)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var second ticketEnvelope
	require.NoError(t, json.Unmarshal(raw, &second))
	assert.True(t, second.Reused)
	assert.Equal(t, first.Data.TicketID, second.Data.TicketID)
}

func TestCreateTicketIgnoresClientPriority(t *testing.T) {
	app, _ := newTestApp(t)

	resp, raw := doJSON(t, app, fiber.MethodPost, "/tickets", "", fiber.Map{
		"customerId": "ada@example.com",
		"issue":      "wrong grout color delivered",
		"priority":   "LOW",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	var envelope ticketEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, domain.TicketPriorityHigh, envelope.Data.Priority, "priority comes from the classifier, not the caller")
}

func TestCreateTicketRejectsAbusiveContent(t *testing.T) {
	app, _ := newTestApp(t)

	resp, raw := doJSON(t, app, fiber.MethodPost, "/tickets", "", fiber.Map{
		"customerId": "ada@example.com",
		"issue":      "go to hell, where is my order",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "VALIDATION_FAILED", envelope.Error.Code)
	assert.Equal(t, "banned-phrase", envelope.Error.Details["reason"])
}

func TestGetTicketIsPublic(t *testing.T) {
	app, _ := newTestApp(t)
	_, raw := doJSON(t, app, fiber.MethodPost, "/tickets", "", fiber.Map{
		"customerId": "ada@example.com", "issue": "missing spacers in the order",
	})
	var created ticketEnvelope
	require.NoError(t, json.Unmarshal(raw, &created))

	resp, raw := doJSON(t, app, fiber.MethodGet, "/tickets/"+created.Data.TicketID, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var fetched ticketEnvelope
	require.NoError(t, json.Unmarshal(raw, &fetched))
	assert.Equal(t, created.Data.ID, fetched.Data.ID)
}

func TestAgentRoutesRequireBearerToken(t *testing.T) {
	app, tokens := newTestApp(t)

	resp, raw := doJSON(t, app, fiber.MethodGet, "/tickets", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "UNAUTHORIZED", envelope.Error.Code)

	token, err := tokens.Issue("agent-7", time.Hour)
	require.NoError(t, err)
	resp, _ = doJSON(t, app, fiber.MethodGet, "/tickets", token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestReplyAndResolveFlow(t *testing.T) {
	app, tokens := newTestApp(t)
	token, err := tokens.Issue("agent-7", time.Hour)
	require.NoError(t, err)

	_, raw := doJSON(t, app, fiber.MethodPost, "/tickets", "", fiber.Map{
		"customerId": "ada@example.com", "issue": "tile batch has visible shade variation",
	})
	var created ticketEnvelope
	require.NoError(t, json.Unmarshal(raw, &created))
	id := created.Data.TicketID

	resp, raw := doJSON(t, app, fiber.MethodPost, "/tickets/"+id+"/reply", token, fiber.Map{
		"message": "replacement batch reserved from the same dye lot", "repliedBy": "agent-7",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	var replied ticketEnvelope
	require.NoError(t, json.Unmarshal(raw, &replied))
	assert.Equal(t, domain.TicketStatusInProgress, replied.Data.Status)
	require.Len(t, replied.Data.Replies, 1)

	resp, raw = doJSON(t, app, fiber.MethodPatch, "/tickets/"+id+"/status", token, fiber.Map{
		"status": "RESOLVED",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	// resolved tickets leave the live store
	resp, _ = doJSON(t, app, fiber.MethodGet, "/tickets/"+id, "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
