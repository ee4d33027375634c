package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terratile/support-service/internal/domain"
	"github.com/terratile/support-service/pkg/ticketid"
)

// ErrDuplicateTicketID signals a collision on the generated ticket
// identifier. The store's unique index is the one hard concurrency
// safeguard; callers absorb this error with a bounded retry.
var ErrDuplicateTicketID = errors.New("duplicate ticket id")

// TicketFilter captures listing parameters for agent search.
type TicketFilter struct {
	Statuses    []domain.TicketStatus
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create inserts the ticket, generating a fresh TicketID immediately
	// before the insert. Returns ErrDuplicateTicketID on a uniqueness
	// violation of the generated identifier.
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByTicketID(ctx context.Context, key string) (*domain.Ticket, error)
	// ListRecentActiveByCustomer returns the customer's non-resolved
	// tickets created at or after since, most recent first.
	ListRecentActiveByCustomer(ctx context.Context, customerID string, since time.Time, limit int) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// UpdateEmbedding backfills the stored issue embedding on a ticket.
	UpdateEmbedding(ctx context.Context, id string, vec []float64) error
	// AppendReply appends to the reply thread and forces IN_PROGRESS.
	AppendReply(ctx context.Context, id string, reply domain.Reply) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error
	Delete(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_id, customer_id, order_id, issue, issue_embedding,
               status, priority, assigned_to, replies, customer_snapshot, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	ticket.TicketID = ticketid.New()
	if ticket.Replies == nil {
		ticket.Replies = []domain.Reply{}
	}
	const query = `
        INSERT INTO tickets (ticket_id, customer_id, order_id, issue, issue_embedding, status, priority, replies, customer_snapshot)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.TicketID,
		ticket.CustomerID,
		ticket.OrderID,
		ticket.Issue,
		ticket.IssueEmbedding,
		ticket.Status,
		ticket.Priority,
		ticket.Replies,
		ticket.CustomerSnapshot,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if isUniqueViolation(err, "tickets_ticket_id_key") {
		return ErrDuplicateTicketID
	}
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByTicketID(ctx context.Context, key string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE ticket_id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.TicketID,
		&ticket.CustomerID,
		&ticket.OrderID,
		&ticket.Issue,
		&ticket.IssueEmbedding,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedTo,
		&ticket.Replies,
		&ticket.CustomerSnapshot,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListRecentActiveByCustomer(ctx context.Context, customerID string, since time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE customer_id=$1 AND status <> $2 AND created_at >= $3
        ORDER BY created_at DESC
        LIMIT $4`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, customerID, domain.TicketStatusResolved, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(issue) LIKE %s OR LOWER(ticket_id) LIKE %s OR LOWER(customer_snapshot->>'name') LIKE %s OR LOWER(customer_snapshot->>'email') LIKE %s)",
			placeholder, placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateEmbedding(ctx context.Context, id string, vec []float64) error {
	const query = `UPDATE tickets SET issue_embedding=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, vec, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) AppendReply(ctx context.Context, id string, reply domain.Reply) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        UPDATE tickets
        SET replies = replies || $1::jsonb, status = $2, updated_at = NOW()
        WHERE id = $3
        RETURNING %s`, ticketColumns)
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, reply, domain.TicketStatusInProgress, id).Scan(
		&ticket.ID,
		&ticket.TicketID,
		&ticket.CustomerID,
		&ticket.OrderID,
		&ticket.Issue,
		&ticket.IssueEmbedding,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedTo,
		&ticket.Replies,
		&ticket.CustomerSnapshot,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	const query = `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TicketID,
			&ticket.CustomerID,
			&ticket.OrderID,
			&ticket.Issue,
			&ticket.IssueEmbedding,
			&ticket.Status,
			&ticket.Priority,
			&ticket.AssignedTo,
			&ticket.Replies,
			&ticket.CustomerSnapshot,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
