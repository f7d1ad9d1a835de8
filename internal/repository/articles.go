package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

type ArticleRepository struct {
	db dbtx
}

func NewArticleRepository(pool *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{db: pool}
}

func NewArticleRepositoryWithTx(tx pgx.Tx) *ArticleRepository {
	return &ArticleRepository{db: tx}
}

const articleColumns = `id, title, summary, content, category, tags, difficulty, read_time_minutes, confidence,
	is_published, effectiveness_score, source_ticket_ids, created_by, created_at, updated_at`

func (r *ArticleRepository) Create(ctx context.Context, a *domain.KnowledgeArticle) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_articles (`+articleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.Title, a.Summary, a.Content, a.Category, nonNilStrings(a.Tags), a.Difficulty, a.ReadTimeMinutes,
		a.Confidence, a.IsPublished, a.EffectivenessScore, nonNilStrings(a.SourceTicketIDs), a.CreatedBy,
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *ArticleRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeArticle, error) {
	a, err := scanArticle(r.db.QueryRow(ctx, `SELECT `+articleColumns+` FROM knowledge_articles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetByIDs returns the articles that exist among ids, in no particular order
func (r *ArticleRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.KnowledgeArticle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+articleColumns+` FROM knowledge_articles WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*domain.KnowledgeArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// MergeSource records ticketID as a source of the article and touches
// updated_at. A ticket already recorded is not appended again.
func (r *ArticleRepository) MergeSource(ctx context.Context, id, ticketID string) (*domain.KnowledgeArticle, error) {
	a, err := scanArticle(r.db.QueryRow(ctx,
		`UPDATE knowledge_articles
		 SET source_ticket_ids = CASE
		         WHEN $2::text = ANY(source_ticket_ids) THEN source_ticket_ids
		         ELSE array_append(source_ticket_ids, $2::text)
		     END,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+articleColumns,
		id, ticketID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *ArticleRepository) UpdateEffectiveness(ctx context.Context, id string, score float64) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_articles SET effectiveness_score = $2 WHERE id = $1`,
		id, score,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrArticleNotFound
	}
	return nil
}

func (r *ArticleRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM knowledge_articles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrArticleNotFound
	}
	return nil
}

func scanArticle(row pgx.Row) (*domain.KnowledgeArticle, error) {
	var a domain.KnowledgeArticle
	var difficulty string
	err := row.Scan(&a.ID, &a.Title, &a.Summary, &a.Content, &a.Category, &a.Tags, &difficulty, &a.ReadTimeMinutes,
		&a.Confidence, &a.IsPublished, &a.EffectivenessScore, &a.SourceTicketIDs, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Difficulty = domain.Difficulty(difficulty)
	return &a, nil
}
