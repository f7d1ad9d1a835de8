package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// FeedbackService records article ratings and derives effectiveness scores
type FeedbackService struct {
	feedback FeedbackRepository
	articles ArticleRepository
	uuidGen  UUIDGenerator
}

// NewFeedbackService creates a new FeedbackService instance
func NewFeedbackService(feedback FeedbackRepository, articles ArticleRepository) *FeedbackService {
	return NewFeedbackServiceWithUUIDGen(feedback, articles, &DefaultUUIDGenerator{})
}

// NewFeedbackServiceWithUUIDGen creates a FeedbackService with custom UUID generator (for testing)
func NewFeedbackServiceWithUUIDGen(feedback FeedbackRepository, articles ArticleRepository, uuidGen UUIDGenerator) *FeedbackService {
	return &FeedbackService{feedback: feedback, articles: articles, uuidGen: uuidGen}
}

// Rate stores a 1..5 rating and refreshes the article's effectiveness
func (s *FeedbackService) Rate(ctx context.Context, articleID string, rating int) (float64, error) {
	if err := domain.ValidateRating(rating); err != nil {
		return 0, err
	}
	if _, err := s.articles.GetByID(ctx, articleID); err != nil {
		return 0, err
	}

	fb := &domain.ArticleFeedback{
		ID:        s.uuidGen.NewString(),
		ArticleID: articleID,
		Rating:    int32(rating),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		return 0, fmt.Errorf("store feedback: %w", err)
	}

	return s.RecomputeEffectiveness(ctx, articleID)
}

// RecomputeEffectiveness sets an article's effectiveness to its mean rating
// over five. Articles without ratings keep their score.
func (s *FeedbackService) RecomputeEffectiveness(ctx context.Context, articleID string) (float64, error) {
	avg, count, err := s.feedback.AverageRating(ctx, articleID)
	if err != nil {
		return 0, fmt.Errorf("average rating: %w", err)
	}
	if count == 0 {
		a, err := s.articles.GetByID(ctx, articleID)
		if err != nil {
			return 0, err
		}
		return a.EffectivenessScore, nil
	}

	score := domain.EffectivenessFromRatings(avg)
	if err := s.articles.UpdateEffectiveness(ctx, articleID, score); err != nil {
		return 0, fmt.Errorf("update effectiveness: %w", err)
	}
	return score, nil
}

// RecomputeAll refreshes the effectiveness of every rated article and
// returns how many were updated
func (s *FeedbackService) RecomputeAll(ctx context.Context) (int, error) {
	averages, err := s.feedback.AverageRatings(ctx)
	if err != nil {
		return 0, fmt.Errorf("average ratings: %w", err)
	}

	updated := 0
	for articleID, avg := range averages {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		err := s.articles.UpdateEffectiveness(ctx, articleID, domain.EffectivenessFromRatings(avg))
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return updated, fmt.Errorf("update effectiveness of %s: %w", articleID, err)
		}
		updated++
	}

	if updated > 0 {
		log.Printf("feedback: refreshed effectiveness of %d articles", updated)
	}
	return updated, nil
}
