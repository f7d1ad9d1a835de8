package service

import (
	"context"
	"log"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/metrics"
)

// minCompletionTokens is the smallest output budget worth sending a
// completion for
const minCompletionTokens = 256

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// CompletionClient defines the interface for text completions
type CompletionClient interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// QuotaGovernor admits provider calls
type QuotaGovernor interface {
	Acquire(kind domain.CallKind, estimatedTokens int) error
	ClampTokens(n int) int
}

// EmbeddingCache stores embeddings by text
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, embedding []float32) error
}

// GovernedCompletionClient asks the governor before every completion. The
// output budget is shrunk so prompt and output fit the per-request token cap.
type GovernedCompletionClient struct {
	next     CompletionClient
	governor QuotaGovernor
}

// NewGovernedCompletionClient wraps next with admission control
func NewGovernedCompletionClient(next CompletionClient, governor QuotaGovernor) *GovernedCompletionClient {
	return &GovernedCompletionClient{next: next, governor: governor}
}

// Complete admits and sends one completion
func (c *GovernedCompletionClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	promptTokens := domain.EstimateTokens(req.System) + domain.EstimateTokens(req.Prompt)

	if budget := c.governor.ClampTokens(promptTokens+req.MaxTokens) - promptTokens; budget >= minCompletionTokens {
		req.MaxTokens = budget
	}

	if err := c.governor.Acquire(domain.CallKindCompletion, promptTokens+req.MaxTokens); err != nil {
		return "", err
	}
	return c.next.Complete(ctx, req)
}

// GovernedEmbeddingClient asks the governor before every embedding. Input
// longer than the per-request token cap is truncated.
type GovernedEmbeddingClient struct {
	next     EmbeddingClient
	governor QuotaGovernor
}

// NewGovernedEmbeddingClient wraps next with admission control
func NewGovernedEmbeddingClient(next EmbeddingClient, governor QuotaGovernor) *GovernedEmbeddingClient {
	return &GovernedEmbeddingClient{next: next, governor: governor}
}

// GenerateEmbedding admits and sends one embedding request
func (c *GovernedEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	tokens := domain.EstimateTokens(text)
	if limit := c.governor.ClampTokens(tokens); limit < tokens {
		text = truncateRunes(text, limit*4)
		tokens = limit
	}

	if err := c.governor.Acquire(domain.CallKindEmbedding, tokens); err != nil {
		return nil, err
	}
	return c.next.GenerateEmbedding(ctx, text)
}

// CachedEmbeddingClient serves repeated texts from the cache so they spend no
// quota. Cache failures fall through to next.
type CachedEmbeddingClient struct {
	next  EmbeddingClient
	cache EmbeddingCache
}

// NewCachedEmbeddingClient wraps next with a read-through cache
func NewCachedEmbeddingClient(next EmbeddingClient, cache EmbeddingCache) *CachedEmbeddingClient {
	return &CachedEmbeddingClient{next: next, cache: cache}
}

// GenerateEmbedding returns the cached embedding of text or computes and stores it
func (c *CachedEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embedding, found, err := c.cache.Get(ctx, text)
	if err != nil {
		log.Printf("embedding cache: get failed: %v", err)
	}
	metrics.Get().RecordCache(found)
	if found {
		return embedding, nil
	}

	embedding, err = c.next.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, text, embedding); err != nil {
		log.Printf("embedding cache: set failed: %v", err)
	}
	return embedding, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
