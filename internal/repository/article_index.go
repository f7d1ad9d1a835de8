package repository

import (
	"cmp"
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/similarity"
)

var _ similarity.Index = (*ArticleIndex)(nil)

// ArticleIndex is the similarity index over article embeddings, stored in
// knowledge_embeddings and searched by pgvector cosine distance
type ArticleIndex struct {
	db dbtx
}

func NewArticleIndex(pool *pgxpool.Pool) *ArticleIndex {
	return &ArticleIndex{db: pool}
}

func NewArticleIndexWithTx(tx pgx.Tx) *ArticleIndex {
	return &ArticleIndex{db: tx}
}

func (r *ArticleIndex) Upsert(ctx context.Context, articleID string, embedding []float32) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_embeddings (article_id, embedding, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (article_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`,
		articleID, pgvector.NewVector(embedding),
	)
	return err
}

// Search returns the k nearest articles, most similar first. The HNSW index
// only proposes candidates; similarity is recomputed exactly from the stored
// vectors, so a zero vector scores 0 instead of NaN.
func (r *ArticleIndex) Search(ctx context.Context, query []float32, k int) ([]domain.ArticleMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT article_id, embedding
		 FROM knowledge_embeddings
		 ORDER BY embedding <=> $1, article_id
		 LIMIT $2`,
		pgvector.NewVector(query), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.ArticleMatch
	for rows.Next() {
		var (
			id        string
			embedding pgvector.Vector
		)
		if err := rows.Scan(&id, &embedding); err != nil {
			return nil, err
		}
		matches = append(matches, domain.ArticleMatch{
			ArticleID:  id,
			Similarity: similarity.Cosine(query, embedding.Slice()),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b domain.ArticleMatch) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return matches, nil
}

func (r *ArticleIndex) Delete(ctx context.Context, articleID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM knowledge_embeddings WHERE article_id = $1`, articleID)
	return err
}
