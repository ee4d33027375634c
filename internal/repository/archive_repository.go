package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terratile/support-service/internal/domain"
)

// ArchiveRepository persists immutable snapshots of resolved tickets.
type ArchiveRepository interface {
	// Archive stores the snapshot. It is idempotent: a second call for the
	// same OriginalID returns the existing archive record unchanged.
	Archive(ctx context.Context, snapshot *domain.ArchivedTicket) (*domain.ArchivedTicket, error)
	GetByOriginalID(ctx context.Context, originalID string) (*domain.ArchivedTicket, error)
}

type archiveRepository struct {
	pool *pgxpool.Pool
}

// NewArchiveRepository instantiates repository.
func NewArchiveRepository(pool *pgxpool.Pool) ArchiveRepository {
	return &archiveRepository{pool: pool}
}

const archiveColumns = `id, original_id, ticket_id, customer_id, order_id, issue, issue_embedding,
               status, priority, assigned_to, replies, customer_snapshot, created_at, updated_at, archived_at`

func (r *archiveRepository) Archive(ctx context.Context, snapshot *domain.ArchivedTicket) (*domain.ArchivedTicket, error) {
	if snapshot.Replies == nil {
		snapshot.Replies = []domain.Reply{}
	}
	const query = `
        INSERT INTO archived_tickets (original_id, ticket_id, customer_id, order_id, issue, issue_embedding,
            status, priority, assigned_to, replies, customer_snapshot, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (original_id) DO NOTHING
        RETURNING id, archived_at`
	err := r.pool.QueryRow(ctx, query,
		snapshot.OriginalID,
		snapshot.TicketID,
		snapshot.CustomerID,
		snapshot.OrderID,
		snapshot.Issue,
		snapshot.IssueEmbedding,
		snapshot.Status,
		snapshot.Priority,
		snapshot.AssignedTo,
		snapshot.Replies,
		snapshot.CustomerSnapshot,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	).Scan(&snapshot.ID, &snapshot.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// already archived on a previous attempt
		return r.GetByOriginalID(ctx, snapshot.OriginalID)
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *archiveRepository) GetByOriginalID(ctx context.Context, originalID string) (*domain.ArchivedTicket, error) {
	query := fmt.Sprintf(`SELECT %s FROM archived_tickets WHERE original_id=$1`, archiveColumns)
	var archived domain.ArchivedTicket
	if err := r.pool.QueryRow(ctx, query, originalID).Scan(
		&archived.ID,
		&archived.OriginalID,
		&archived.TicketID,
		&archived.CustomerID,
		&archived.OrderID,
		&archived.Issue,
		&archived.IssueEmbedding,
		&archived.Status,
		&archived.Priority,
		&archived.AssignedTo,
		&archived.Replies,
		&archived.CustomerSnapshot,
		&archived.CreatedAt,
		&archived.UpdatedAt,
		&archived.ArchivedAt,
	); err != nil {
		return nil, err
	}
	return &archived, nil
}
