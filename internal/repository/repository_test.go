//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/service"
	"github.com/cloo-solutions/helpdesk-learning/internal/testutil"
)

const embeddingDims = 1536

// axis returns a unit vector along dimension i, optionally tilted toward j
func axis(i int, tilt float32, j int) []float32 {
	v := make([]float32, embeddingDims)
	v[i] = 1
	if tilt != 0 {
		v[j] = tilt
	}
	return v
}

func newArticle(title string, sources ...string) *domain.KnowledgeArticle {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.KnowledgeArticle{
		ID:              uuid.NewString(),
		Title:           title,
		Summary:         "How to recover from " + title,
		Content:         "## Steps\n1. Restart the service",
		Category:        "network",
		Tags:            []string{"vpn", "network", "remote"},
		Difficulty:      domain.DifficultyBeginner,
		ReadTimeMinutes: 3,
		Confidence:      82,
		IsPublished:     true,
		SourceTicketIDs: sources,
		CreatedBy:       domain.CreatedByAILearning,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func newPattern(category string, successRate int32, ticketID string) *domain.ResolutionPattern {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ResolutionPattern{
		ID:              uuid.NewString(),
		Pattern:         "VPN drops after sleep",
		Resolution:      "Reinstall the VPN client",
		Category:        category,
		Keywords:        []string{"vpn", "sleep"},
		Frequency:       1,
		SuccessRate:     successRate,
		SourceTicketIDs: []string{ticketID},
		LastUsed:        now,
		CreatedAt:       now,
	}
}

func insertTicket(ctx context.Context, t *testing.T, pool *pgxpool.Pool, id string, resolvedAt *time.Time) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO tickets (id, title, description, category, priority, status, resolution, resolved_at)
		 VALUES ($1, 'VPN keeps dropping', 'Disconnects every hour', 'network', 'high', 'resolved', 'Reinstalled client', $2)`,
		id, resolvedAt)
	require.NoError(t, err)
}

func TestArticleRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewArticleRepository(pool)

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		a := newArticle("VPN disconnects", "ticket-1")
		require.NoError(t, repo.Create(ctx, a))

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Title, got.Title)
		assert.Equal(t, a.Tags, got.Tags)
		assert.Equal(t, domain.DifficultyBeginner, got.Difficulty)
		assert.Equal(t, []string{"ticket-1"}, got.SourceTicketIDs)

		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrArticleNotFound)
	})

	t.Run("merge source is idempotent", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		a := newArticle("VPN disconnects", "ticket-1")
		a.UpdatedAt = a.UpdatedAt.Add(-time.Hour)
		require.NoError(t, repo.Create(ctx, a))

		merged, err := repo.MergeSource(ctx, a.ID, "ticket-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"ticket-1", "ticket-2"}, merged.SourceTicketIDs)
		assert.True(t, merged.UpdatedAt.After(a.UpdatedAt))

		again, err := repo.MergeSource(ctx, a.ID, "ticket-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"ticket-1", "ticket-2"}, again.SourceTicketIDs)

		_, err = repo.MergeSource(ctx, uuid.NewString(), "ticket-3")
		assert.ErrorIs(t, err, domain.ErrArticleNotFound)
	})

	t.Run("get by ids skips missing", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		a := newArticle("VPN disconnects")
		b := newArticle("Printer offline")
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		got, err := repo.GetByIDs(ctx, []string{a.ID, uuid.NewString(), b.ID})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		none, err := repo.GetByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("effectiveness and delete", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		a := newArticle("VPN disconnects")
		require.NoError(t, repo.Create(ctx, a))

		require.NoError(t, repo.UpdateEffectiveness(ctx, a.ID, 0.75))
		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, got.EffectivenessScore, 1e-9)

		require.NoError(t, repo.Delete(ctx, a.ID))
		assert.ErrorIs(t, repo.Delete(ctx, a.ID), domain.ErrArticleNotFound)
		assert.ErrorIs(t, repo.UpdateEffectiveness(ctx, a.ID, 0.5), domain.ErrArticleNotFound)
	})
}

func TestArticleIndex(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	articles := NewArticleRepository(pool)
	index := NewArticleIndex(pool)

	require.NoError(t, testutil.TruncateAll(ctx, pool))
	exact := newArticle("VPN disconnects")
	near := newArticle("VPN slow")
	far := newArticle("Printer offline")
	for _, a := range []*domain.KnowledgeArticle{exact, near, far} {
		require.NoError(t, articles.Create(ctx, a))
	}
	require.NoError(t, index.Upsert(ctx, exact.ID, axis(0, 0, 0)))
	require.NoError(t, index.Upsert(ctx, near.ID, axis(0, 1, 1)))
	require.NoError(t, index.Upsert(ctx, far.ID, axis(2, 0, 0)))

	t.Run("nearest first", func(t *testing.T) {
		matches, err := index.Search(ctx, axis(0, 0, 0), 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, exact.ID, matches[0].ArticleID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		assert.Equal(t, near.ID, matches[1].ArticleID)
		assert.InDelta(t, 0.7071, matches[1].Similarity, 1e-3)
		assert.InDelta(t, 0.0, matches[2].Similarity, 1e-6)
	})

	t.Run("zero query scores zero", func(t *testing.T) {
		matches, err := index.Search(ctx, make([]float32, embeddingDims), 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		for _, m := range matches {
			assert.Zero(t, m.Similarity)
		}
	})

	t.Run("upsert replaces the embedding", func(t *testing.T) {
		require.NoError(t, index.Upsert(ctx, far.ID, axis(0, 0, 0)))
		matches, err := index.Search(ctx, axis(0, 0, 0), 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.ElementsMatch(t, []string{exact.ID, far.ID}, []string{matches[0].ArticleID, matches[1].ArticleID})
	})

	t.Run("delete and zero k", func(t *testing.T) {
		require.NoError(t, index.Delete(ctx, exact.ID))
		matches, err := index.Search(ctx, axis(0, 0, 0), 10)
		require.NoError(t, err)
		assert.Len(t, matches, 2)

		none, err := index.Search(ctx, axis(0, 0, 0), 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestPatternRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewPatternRepository(pool)

	t.Run("find similar respects category and threshold", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		p := newPattern("network", 80, "ticket-1")
		require.NoError(t, repo.Create(ctx, p, axis(0, 0, 0)))

		found, err := repo.FindSimilar(ctx, "network", axis(0, 0.1, 1), 0.85)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, p.ID, found.ID)

		none, err := repo.FindSimilar(ctx, "hardware", axis(0, 0, 0), 0.85)
		require.NoError(t, err)
		assert.Nil(t, none)

		none, err = repo.FindSimilar(ctx, "network", axis(0, 1, 1), 0.85)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("record sighting averages success once per ticket", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		p := newPattern("network", 80, "ticket-1")
		require.NoError(t, repo.Create(ctx, p, axis(0, 0, 0)))

		got, err := repo.RecordSighting(ctx, p.ID, "ticket-2", 60)
		require.NoError(t, err)
		assert.Equal(t, int32(2), got.Frequency)
		assert.Equal(t, int32(70), got.SuccessRate)
		assert.Equal(t, []string{"ticket-1", "ticket-2"}, got.SourceTicketIDs)

		again, err := repo.RecordSighting(ctx, p.ID, "ticket-2", 0)
		require.NoError(t, err)
		assert.Equal(t, int32(2), again.Frequency)
		assert.Equal(t, int32(70), again.SuccessRate)

		_, err = repo.RecordSighting(ctx, uuid.NewString(), "ticket-3", 50)
		assert.ErrorIs(t, err, domain.ErrPatternNotFound)
		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrPatternNotFound)
	})
}

func TestFeedbackRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	require.NoError(t, testutil.TruncateAll(ctx, pool))

	articles := NewArticleRepository(pool)
	repo := NewFeedbackRepository(pool)
	rated := newArticle("VPN disconnects")
	unrated := newArticle("Printer offline")
	require.NoError(t, articles.Create(ctx, rated))
	require.NoError(t, articles.Create(ctx, unrated))

	for _, rating := range []int32{5, 4, 3} {
		require.NoError(t, repo.Create(ctx, &domain.ArticleFeedback{
			ID: uuid.NewString(), ArticleID: rated.ID, Rating: rating, CreatedAt: time.Now().UTC(),
		}))
	}

	avg, count, err := repo.AverageRating(ctx, rated.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, avg, 1e-9)
	assert.Equal(t, int64(3), count)

	avg, count, err = repo.AverageRating(ctx, unrated.ID)
	require.NoError(t, err)
	assert.Zero(t, avg)
	assert.Zero(t, count)

	all, err := repo.AverageRatings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{rated.ID: 4.0}, all)
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	require.NoError(t, testutil.TruncateAll(ctx, pool))
	repo := NewSettingsRepository(pool)

	_, err := repo.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrSettingsNotFound)

	s := domain.DefaultWorkflowSettings()
	require.NoError(t, repo.Save(ctx, s))
	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, *got)

	strict, err := domain.PresetPolicy(domain.PresetStrict)
	require.NoError(t, err)
	s.RateLimit = strict
	s.EscalationTeamID = "tier-2"
	s.AutoLearnEnabled = false
	require.NoError(t, repo.Save(ctx, s))

	got, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, *got)
}

func TestTicketRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	require.NoError(t, testutil.TruncateAll(ctx, pool))
	repo := NewTicketRepository(pool)

	recent := time.Now().UTC().Add(-24 * time.Hour)
	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	insertTicket(ctx, t, pool, "ticket-recent", &recent)
	insertTicket(ctx, t, pool, "ticket-old", &old)
	insertTicket(ctx, t, pool, "ticket-open", nil)
	_, err := pool.Exec(ctx,
		`INSERT INTO ticket_comments (id, ticket_id, author, body, created_at) VALUES
		 ('c-2', 'ticket-recent', 'agent', 'Reinstalled the client', now()),
		 ('c-1', 'ticket-recent', 'customer', 'VPN drops again', now() - interval '1 hour')`)
	require.NoError(t, err)

	got, err := repo.GetResolvedTicket(ctx, "ticket-recent")
	require.NoError(t, err)
	assert.Equal(t, "Reinstalled client", got.Resolution)
	require.NotNil(t, got.ResolvedAt)

	_, err = repo.GetResolvedTicket(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)

	tickets, err := repo.GetRecentResolvedTickets(ctx, 30)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "ticket-recent", tickets[0].ID)

	comments, err := repo.GetCommentsForTicket(ctx, "ticket-recent")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c-1", comments[0].ID)

	none, err := repo.GetCommentsForTicket(ctx, "ticket-open")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestTxRunner(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	require.NoError(t, testutil.TruncateAll(ctx, pool))
	runner := NewTxRunner(pool)
	articles := NewArticleRepository(pool)

	t.Run("rollback on error", func(t *testing.T) {
		a := newArticle("VPN disconnects")
		err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
			if err := repos.Articles().Create(ctx, a); err != nil {
				return err
			}
			return domain.ErrArticleNotFound
		})
		assert.ErrorIs(t, err, domain.ErrArticleNotFound)

		_, err = articles.GetByID(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrArticleNotFound)
	})

	t.Run("lock serialises merges", func(t *testing.T) {
		a := newArticle("VPN disconnects")
		require.NoError(t, articles.Create(ctx, a))

		var wg sync.WaitGroup
		errs := make(chan error, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- runner.WithTx(ctx, func(repos service.TxRepositories) error {
					if err := repos.Lock(ctx, "article-dedup"); err != nil {
						return err
					}
					_, err := repos.Articles().MergeSource(ctx, a.ID, uuid.NewString())
					return err
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := articles.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, got.SourceTicketIDs, 5)
	})
}
