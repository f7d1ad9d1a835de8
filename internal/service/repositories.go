package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/pagination"
)

// TicketStore is the read-only view of the external ticket store
type TicketStore interface {
	GetResolvedTicket(ctx context.Context, id string) (*domain.ResolvedTicket, error)
	GetRecentResolvedTickets(ctx context.Context, days int) ([]*domain.ResolvedTicket, error)
	GetCommentsForTicket(ctx context.Context, ticketID string) ([]domain.Comment, error)
}

// LearningQueueRepository persists the learning queue state machine. Every
// transition is guarded by the item's current status in storage.
type LearningQueueRepository interface {
	Enqueue(ctx context.Context, item *domain.LearningQueueItem) (bool, error)
	GetByTicketID(ctx context.Context, ticketID string) (*domain.LearningQueueItem, error)
	Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]*domain.LearningQueueItem, error)
	MarkCompleted(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, errMsg string) (domain.LearningStatus, error)
	FailPermanently(ctx context.Context, id string, errMsg string) error
	Release(ctx context.Context, id string, reason string) error
	ReapStale(ctx context.Context, staleAfter time.Duration) (int64, error)
	Stats(ctx context.Context, since time.Time) (*domain.LearningQueueStats, error)
	ListFailed(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.FailedLearningItem, error)
}

// ArticleRepository persists knowledge articles
type ArticleRepository interface {
	Create(ctx context.Context, a *domain.KnowledgeArticle) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeArticle, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.KnowledgeArticle, error)
	MergeSource(ctx context.Context, id, ticketID string) (*domain.KnowledgeArticle, error)
	UpdateEffectiveness(ctx context.Context, id string, score float64) error
	Delete(ctx context.Context, id string) error
}

// PatternRepository persists resolution patterns
type PatternRepository interface {
	FindSimilar(ctx context.Context, category string, embedding []float32, threshold float64) (*domain.ResolutionPattern, error)
	Create(ctx context.Context, p *domain.ResolutionPattern, embedding []float32) error
	RecordSighting(ctx context.Context, id, ticketID string, successRate int) (*domain.ResolutionPattern, error)
}

// FeedbackRepository stores article ratings
type FeedbackRepository interface {
	Create(ctx context.Context, fb *domain.ArticleFeedback) error
	AverageRating(ctx context.Context, articleID string) (avg float64, count int64, err error)
	AverageRatings(ctx context.Context) (map[string]float64, error)
}

// SettingsRepository stores the admin-owned workflow settings
type SettingsRepository interface {
	Get(ctx context.Context) (*domain.WorkflowSettings, error)
	Save(ctx context.Context, s domain.WorkflowSettings) error
}

// ArticleIndex is the similarity index over article embeddings
type ArticleIndex interface {
	Upsert(ctx context.Context, articleID string, embedding []float32) error
	Search(ctx context.Context, query []float32, k int) ([]domain.ArticleMatch, error)
	Delete(ctx context.Context, articleID string) error
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Articles() ArticleRepository
	ArticleIndex() ArticleIndex
	Patterns() PatternRepository
	// Lock takes a transaction-scoped lock on key
	Lock(ctx context.Context, key string) error
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
