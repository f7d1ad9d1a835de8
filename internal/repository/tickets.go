package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// TicketRepository is a read-only view of the helpdesk's tickets
type TicketRepository struct {
	db dbtx
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: pool}
}

const ticketColumns = `id, title, description, category, priority, resolution, resolved_at`

func (r *TicketRepository) GetResolvedTicket(ctx context.Context, id string) (*domain.ResolvedTicket, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *TicketRepository) GetRecentResolvedTickets(ctx context.Context, days int) ([]*domain.ResolvedTicket, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE resolved_at IS NOT NULL AND resolved_at >= now() - make_interval(days => $1)
		 ORDER BY resolved_at DESC, id`,
		days,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.ResolvedTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *TicketRepository) GetCommentsForTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, ticket_id, author, body, is_internal, created_at
		 FROM ticket_comments WHERE ticket_id = $1 ORDER BY created_at ASC, id`,
		ticketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.Author, &c.Body, &c.Internal, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.ResolvedTicket, error) {
	var t domain.ResolvedTicket
	var resolution *string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.Priority, &resolution, &t.ResolvedAt); err != nil {
		return nil, err
	}
	t.Resolution = derefString(resolution)
	return &t, nil
}
