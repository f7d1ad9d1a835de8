package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

type PatternRepository struct {
	db dbtx
}

func NewPatternRepository(pool *pgxpool.Pool) *PatternRepository {
	return &PatternRepository{db: pool}
}

func NewPatternRepositoryWithTx(tx pgx.Tx) *PatternRepository {
	return &PatternRepository{db: tx}
}

const patternColumns = `id, pattern, resolution, category, keywords, frequency, success_rate, source_ticket_ids, last_used, created_at`

// FindSimilar returns the nearest pattern of the category whose cosine
// similarity to embedding is at least threshold, or nil when there is none
func (r *PatternRepository) FindSimilar(ctx context.Context, category string, embedding []float32, threshold float64) (*domain.ResolutionPattern, error) {
	vec := pgvector.NewVector(embedding)
	p, err := scanPattern(r.db.QueryRow(ctx,
		`SELECT `+patternColumns+`
		 FROM resolution_patterns
		 WHERE category = $1 AND 1 - (embedding <=> $2) >= $3
		 ORDER BY embedding <=> $2, id
		 LIMIT 1`,
		category, vec, threshold,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *PatternRepository) Create(ctx context.Context, p *domain.ResolutionPattern, embedding []float32) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO resolution_patterns (`+patternColumns+`, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Pattern, p.Resolution, p.Category, nonNilStrings(p.Keywords), p.Frequency, p.SuccessRate,
		nonNilStrings(p.SourceTicketIDs), p.LastUsed, p.CreatedAt, pgvector.NewVector(embedding),
	)
	return err
}

func (r *PatternRepository) GetByID(ctx context.Context, id string) (*domain.ResolutionPattern, error) {
	p, err := scanPattern(r.db.QueryRow(ctx, `SELECT `+patternColumns+` FROM resolution_patterns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPatternNotFound
		}
		return nil, err
	}
	return p, nil
}

// RecordSighting counts ticketID as another occurrence of the pattern,
// folding successRate into the running average. A ticket already recorded
// only refreshes last_used.
func (r *PatternRepository) RecordSighting(ctx context.Context, id, ticketID string, successRate int) (*domain.ResolutionPattern, error) {
	p, err := scanPattern(r.db.QueryRow(ctx,
		`UPDATE resolution_patterns
		 SET success_rate = CASE WHEN $2::text = ANY(source_ticket_ids) THEN success_rate
		                         ELSE (success_rate * frequency + $3) / (frequency + 1) END,
		     frequency = CASE WHEN $2::text = ANY(source_ticket_ids) THEN frequency ELSE frequency + 1 END,
		     source_ticket_ids = CASE WHEN $2::text = ANY(source_ticket_ids) THEN source_ticket_ids
		                              ELSE array_append(source_ticket_ids, $2::text) END,
		     last_used = now()
		 WHERE id = $1
		 RETURNING `+patternColumns,
		id, ticketID, successRate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPatternNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanPattern(row pgx.Row) (*domain.ResolutionPattern, error) {
	var p domain.ResolutionPattern
	if err := row.Scan(&p.ID, &p.Pattern, &p.Resolution, &p.Category, &p.Keywords, &p.Frequency, &p.SuccessRate,
		&p.SourceTicketIDs, &p.LastUsed, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
