package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/metrics"
	"github.com/cloo-solutions/helpdesk-learning/internal/telemetry"
)

const (
	dedupSearchK = 5
	// articleDedupLock serializes the check-then-create of new articles
	articleDedupLock = "knowledge_articles:dedup"
)

// GenerationSource is what an article is written from: a promoted pattern with
// the ticket that triggered it, or a single high-quality ticket
type GenerationSource struct {
	Pattern *domain.ResolutionPattern
	Ticket  *domain.ResolvedTicket
}

// GenerationResult reports the article a generation produced or was folded into
type GenerationResult struct {
	Article    *domain.KnowledgeArticle
	Merged     bool
	Similarity float64
}

// ArticleGenerator writes knowledge articles with the model and deduplicates
// them against the existing knowledge base
type ArticleGenerator struct {
	completer CompletionClient
	embedder  EmbeddingClient
	articles  ArticleRepository
	index     ArticleIndex
	tx        TxRunner
	archiver  *ArticleArchiver
	uuidGen   UUIDGenerator
}

// NewArticleGenerator creates an ArticleGenerator. archiver may be nil.
func NewArticleGenerator(
	completer CompletionClient,
	embedder EmbeddingClient,
	articles ArticleRepository,
	index ArticleIndex,
	tx TxRunner,
	archiver *ArticleArchiver,
) *ArticleGenerator {
	return NewArticleGeneratorWithUUIDGen(completer, embedder, articles, index, tx, archiver, &DefaultUUIDGenerator{})
}

// NewArticleGeneratorWithUUIDGen creates an ArticleGenerator with custom UUID generator (for testing)
func NewArticleGeneratorWithUUIDGen(
	completer CompletionClient,
	embedder EmbeddingClient,
	articles ArticleRepository,
	index ArticleIndex,
	tx TxRunner,
	archiver *ArticleArchiver,
	uuidGen UUIDGenerator,
) *ArticleGenerator {
	return &ArticleGenerator{
		completer: completer,
		embedder:  embedder,
		articles:  articles,
		index:     index,
		tx:        tx,
		archiver:  archiver,
		uuidGen:   uuidGen,
	}
}

// Generate writes an article for src. A draft whose title and summary are at
// least DedupSimilarityThreshold similar to an existing published article or
// learning draft is folded into it instead of being stored.
func (g *ArticleGenerator) Generate(ctx context.Context, src GenerationSource, settings domain.WorkflowSettings) (*GenerationResult, error) {
	if src.Ticket == nil {
		return nil, domain.ValidationError("generation source has no ticket", domain.ErrMissingRequiredField)
	}

	ctx, span := telemetry.StartSpan(ctx, "ArticleGenerator.Generate", telemetry.SpanAttributes{
		TicketID:  src.Ticket.ID,
		Category:  src.Ticket.Category,
		Operation: "generate",
	})
	defer span.End()

	raw, err := g.completer.Complete(ctx, domain.CompletionRequest{
		System:      generationSystemPrompt,
		Prompt:      buildGenerationPrompt(src),
		MaxTokens:   generationMaxTokens,
		Temperature: generationTemperature,
		JSON:        true,
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("article generation: %w", err)
	}

	draft, err := parseArticleDraft(raw)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("article generation: %w", err)
	}

	dedupVec, err := g.embedder.GenerateEmbedding(ctx, domain.DedupText(draft.Title, draft.Summary))
	if err != nil {
		return nil, fmt.Errorf("embed article draft: %w", err)
	}

	existing, sim, err := findDuplicate(ctx, g.articles, g.index, dedupVec)
	if err != nil {
		return nil, fmt.Errorf("dedup search: %w", err)
	}
	if existing != nil {
		return g.merge(ctx, g.articles, existing, src.Ticket.ID, sim)
	}

	now := time.Now().UTC()
	article := &domain.KnowledgeArticle{
		ID:              g.uuidGen.NewString(),
		Title:           draft.Title,
		Summary:         draft.Summary,
		Content:         draft.Content,
		Category:        draft.Category,
		Tags:            draft.Tags,
		Difficulty:      domain.Difficulty(draft.Difficulty),
		ReadTimeMinutes: int32(draft.ReadTimeMinutes),
		Confidence:      int32(draft.Confidence),
		IsPublished:     domain.ShouldPublish(draft.Confidence, settings.ArticleApprovalRequired),
		SourceTicketIDs: []string{src.Ticket.ID},
		CreatedBy:       domain.CreatedByAILearning,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	contentVec, err := g.embedder.GenerateEmbedding(ctx, article.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embed article: %w", err)
	}

	var result *GenerationResult
	err = g.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Lock(ctx, articleDedupLock); err != nil {
			return err
		}

		// another item may have created the same article since the first check
		existing, sim, err := findDuplicate(ctx, repos.Articles(), repos.ArticleIndex(), dedupVec)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = g.merge(ctx, repos.Articles(), existing, src.Ticket.ID, sim)
			return err
		}

		if err := repos.Articles().Create(ctx, article); err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		if err := repos.ArticleIndex().Upsert(ctx, article.ID, contentVec); err != nil {
			return fmt.Errorf("store article embedding: %w", err)
		}
		result = &GenerationResult{Article: article}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if !result.Merged {
		metrics.Get().RecordArticle("created")
		log.Printf("learning: created article %s %q from ticket %s (published=%t)",
			article.ID, article.Title, src.Ticket.ID, article.IsPublished)
		g.archive(ctx, article)
	}
	return result, nil
}

func (g *ArticleGenerator) merge(ctx context.Context, articles ArticleRepository, existing *domain.KnowledgeArticle, ticketID string, sim float64) (*GenerationResult, error) {
	merged, err := articles.MergeSource(ctx, existing.ID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("merge into article %s: %w", existing.ID, err)
	}

	metrics.Get().RecordArticle("merged")
	log.Printf("learning: merged ticket %s into article %s (similarity %.3f)", ticketID, merged.ID, sim)
	g.archive(ctx, merged)
	return &GenerationResult{Article: merged, Merged: true, Similarity: sim}, nil
}

func (g *ArticleGenerator) archive(ctx context.Context, a *domain.KnowledgeArticle) {
	if g.archiver == nil || !a.IsPublished {
		return
	}
	if err := g.archiver.Archive(ctx, a); err != nil {
		log.Printf("learning: archive article %s failed: %v", a.ID, err)
		telemetry.CaptureError(ctx, err)
	}
}

// findDuplicate returns the most similar article that a new draft should be
// folded into, if any
func findDuplicate(ctx context.Context, articles ArticleRepository, index ArticleIndex, query []float32) (*domain.KnowledgeArticle, float64, error) {
	matches, err := index.Search(ctx, query, dedupSearchK)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= domain.DedupSimilarityThreshold {
			ids = append(ids, m.ArticleID)
		}
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	found, err := articles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[string]*domain.KnowledgeArticle, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}

	for _, m := range matches {
		a, ok := byID[m.ArticleID]
		if !ok || m.Similarity < domain.DedupSimilarityThreshold {
			continue
		}
		if a.AcceptsMerge() {
			return a, m.Similarity, nil
		}
	}
	return nil, 0, nil
}
