package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/similarity"
)

type generatorHarness struct {
	articles  *memArticleRepository
	index     *similarity.MemoryIndex
	tx        *fakeTxRunner
	embedder  *keywordEmbedder
	completer *scriptedCompleter
	storage   *MockArchiveStorage
	generator *ArticleGenerator
}

func newGeneratorHarness(uuids ...string) *generatorHarness {
	h := &generatorHarness{
		articles:  newMemArticleRepository(),
		index:     similarity.NewMemoryIndex(),
		embedder:  &keywordEmbedder{},
		completer: &scriptedCompleter{article: passwordResetArticle},
		storage:   new(MockArchiveStorage),
	}
	h.tx = &fakeTxRunner{articles: h.articles, index: h.index}
	archiver := NewArticleArchiver(h.storage, h.articles)
	h.generator = NewArticleGeneratorWithUUIDGen(h.completer, h.embedder, h.articles, h.index, h.tx, archiver, NewMockUUIDGenerator(uuids...))
	return h
}

func (h *generatorHarness) seedArticle(t *testing.T, a *domain.KnowledgeArticle) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.articles.Create(ctx, a))
	vec, err := h.embedder.GenerateEmbedding(ctx, a.EmbeddingText())
	require.NoError(t, err)
	require.NoError(t, h.index.Upsert(ctx, a.ID, vec))
}

func TestArticleGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	settings := domain.DefaultWorkflowSettings()
	ticket := passwordResetTickets(1)[0]

	t.Run("creates and publishes a confident article", func(t *testing.T) {
		h := newGeneratorHarness("article-1")
		h.storage.On("PutArticle", mock.Anything, "article-1", mock.Anything).Return(nil)

		result, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)

		require.NoError(t, err)
		assert.False(t, result.Merged)
		a := result.Article
		assert.Equal(t, "article-1", a.ID)
		assert.True(t, a.IsPublished)
		assert.Equal(t, domain.CreatedByAILearning, a.CreatedBy)
		assert.Equal(t, []string{ticket.ID}, a.SourceTicketIDs)
		assert.Equal(t, int32(85), a.Confidence)
		assert.Equal(t, domain.DifficultyBeginner, a.Difficulty)
		assert.Equal(t, 1, h.index.Len())
		assert.Contains(t, h.tx.locks, articleDedupLock)
		h.storage.AssertExpectations(t)
	})

	t.Run("approval requirement keeps the article unpublished", func(t *testing.T) {
		h := newGeneratorHarness("article-1")
		s := settings
		s.ArticleApprovalRequired = true

		result, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, s)

		require.NoError(t, err)
		assert.False(t, result.Article.IsPublished)
		h.storage.AssertNotCalled(t, "PutArticle", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("low confidence keeps the article unpublished", func(t *testing.T) {
		h := newGeneratorHarness("article-1")
		h.completer.article = strings.Replace(passwordResetArticle, `"confidence": 85`, `"confidence": 69`, 1)

		result, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)

		require.NoError(t, err)
		assert.False(t, result.Article.IsPublished)
	})

	t.Run("publishes at exactly the confidence threshold", func(t *testing.T) {
		h := newGeneratorHarness("article-1")
		h.completer.article = strings.Replace(passwordResetArticle, `"confidence": 85`, `"confidence": 70`, 1)
		h.storage.On("PutArticle", mock.Anything, "article-1", mock.Anything).Return(nil)

		result, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)

		require.NoError(t, err)
		assert.True(t, result.Article.IsPublished)
	})

	t.Run("folds a duplicate into the existing article", func(t *testing.T) {
		h := newGeneratorHarness("article-2")
		now := time.Now().UTC().Add(-time.Hour)
		h.seedArticle(t, &domain.KnowledgeArticle{
			ID: "existing", Title: "Password reset guide", Summary: "Reset a forgotten password",
			Content: "steps", Category: "account", IsPublished: true, CreatedBy: "user-7",
			SourceTicketIDs: []string{"old-ticket"}, CreatedAt: now, UpdatedAt: now,
		})
		h.storage.On("PutArticle", mock.Anything, "existing", mock.Anything).Return(nil)

		result, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)

		require.NoError(t, err)
		assert.True(t, result.Merged)
		assert.GreaterOrEqual(t, result.Similarity, domain.DedupSimilarityThreshold)
		assert.Equal(t, "existing", result.Article.ID)
		assert.Equal(t, []string{"old-ticket", ticket.ID}, result.Article.SourceTicketIDs)
		assert.True(t, result.Article.UpdatedAt.After(now))
		assert.Len(t, h.articles.all(), 1)
	})

	t.Run("merging the same ticket twice records it once", func(t *testing.T) {
		h := newGeneratorHarness("article-1", "article-2")
		h.storage.On("PutArticle", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		first, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)
		require.NoError(t, err)
		second, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)
		require.NoError(t, err)

		assert.True(t, second.Merged)
		assert.Equal(t, first.Article.ID, second.Article.ID)
		assert.Equal(t, []string{ticket.ID}, second.Article.SourceTicketIDs)
		assert.Len(t, h.articles.all(), 1)
	})

	t.Run("does not merge into an unpublished article written by a user", func(t *testing.T) {
		h := newGeneratorHarness("article-2")
		now := time.Now().UTC()
		h.seedArticle(t, &domain.KnowledgeArticle{
			ID: "user-draft", Title: "Password reset", Summary: "draft", Content: "wip",
			Category: "account", IsPublished: false, CreatedBy: "user-7", CreatedAt: now, UpdatedAt: now,
		})
		h.storage.On("PutArticle", mock.Anything, "article-2", mock.Anything).Return(nil)

		result, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)

		require.NoError(t, err)
		assert.False(t, result.Merged)
		assert.Equal(t, "article-2", result.Article.ID)
		assert.Len(t, h.articles.all(), 2)
	})

	t.Run("archive failure does not fail generation", func(t *testing.T) {
		h := newGeneratorHarness("article-1")
		h.storage.On("PutArticle", mock.Anything, "article-1", mock.Anything).Return(errors.New("bucket missing"))

		result, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)

		require.NoError(t, err)
		assert.Equal(t, "article-1", result.Article.ID)
	})

	t.Run("malformed draft stores nothing", func(t *testing.T) {
		h := newGeneratorHarness("article-1")
		h.completer.article = `{"title": ""}`

		_, err := h.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)

		var me *domain.MalformedResponseError
		require.ErrorAs(t, err, &me)
		assert.Empty(t, h.articles.all())
		assert.Equal(t, 0, h.index.Len())
	})

	t.Run("requires a ticket", func(t *testing.T) {
		h := newGeneratorHarness()

		_, err := h.generator.Generate(ctx, GenerationSource{}, settings)

		assert.True(t, domain.IsValidation(err))
	})
}

func TestBuildGenerationPrompt(t *testing.T) {
	ticket := passwordResetTickets(1)[0]
	pattern := &domain.ResolutionPattern{
		Pattern: "Locked out after password expiry", Resolution: "Reset and unlock",
		Category: "account", Keywords: []string{"password"}, Frequency: 4, SuccessRate: 88,
	}

	prompt := buildGenerationPrompt(GenerationSource{Pattern: pattern, Ticket: ticket})

	assert.Contains(t, prompt, "Problem: Locked out after password expiry")
	assert.Contains(t, prompt, "Seen in 4 tickets with a 88% success rate.")
	assert.Contains(t, prompt, "Title: Forgot my password")
	assert.Contains(t, prompt, "Problem, Cause, Steps to resolve, Prevention")
	assert.Contains(t, prompt, "at most 100 characters")
	assert.Contains(t, prompt, "at most 200 characters")
}
