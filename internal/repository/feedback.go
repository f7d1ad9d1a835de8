package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

type FeedbackRepository struct {
	db dbtx
}

func NewFeedbackRepository(pool *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{db: pool}
}

func (r *FeedbackRepository) Create(ctx context.Context, fb *domain.ArticleFeedback) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO article_feedback (id, article_id, rating, created_at) VALUES ($1, $2, $3, $4)`,
		fb.ID, fb.ArticleID, fb.Rating, fb.CreatedAt,
	)
	return err
}

// AverageRating returns the mean rating of an article and the number of
// ratings; avg is 0 when there are none
func (r *FeedbackRepository) AverageRating(ctx context.Context, articleID string) (float64, int64, error) {
	var avg float64
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*) FROM article_feedback WHERE article_id = $1`,
		articleID,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	return avg, count, nil
}

// AverageRatings returns the mean rating of every rated article
func (r *FeedbackRepository) AverageRatings(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT article_id, AVG(rating)::float8 FROM article_feedback GROUP BY article_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	averages := make(map[string]float64)
	for rows.Next() {
		var id string
		var avg float64
		if err := rows.Scan(&id, &avg); err != nil {
			return nil, err
		}
		averages[id] = avg
	}
	return averages, rows.Err()
}
