package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/telemetry"
)

const (
	// MinExtractionBatch is the smallest category batch worth mining
	MinExtractionBatch = 3
	// MaxExtractionBatch bounds the tickets sent in one extraction prompt
	MaxExtractionBatch = 6

	maxPatternsPerBatch = 5
)

// PatternExtractor mines recurring resolution patterns from ticket batches
type PatternExtractor struct {
	completer CompletionClient
}

// NewPatternExtractor creates a PatternExtractor
func NewPatternExtractor(completer CompletionClient) *PatternExtractor {
	return &PatternExtractor{completer: completer}
}

// Extract asks the model for up to five patterns shared by a same-category
// batch. Batches smaller than MinExtractionBatch are skipped and yield no
// patterns. Governor denials, provider failures and malformed output are
// returned to the caller.
func (e *PatternExtractor) Extract(ctx context.Context, batch []*domain.ResolvedTicket) ([]domain.ExtractedPattern, error) {
	if len(batch) < MinExtractionBatch {
		return nil, nil
	}
	if len(batch) > MaxExtractionBatch {
		batch = batch[:MaxExtractionBatch]
	}

	ctx, span := telemetry.StartSpan(ctx, "PatternExtractor.Extract", telemetry.SpanAttributes{
		TicketID:  batch[0].ID,
		Category:  batch[0].Category,
		Operation: "extract",
	})
	defer span.End()

	raw, err := e.completer.Complete(ctx, domain.CompletionRequest{
		System:      extractionSystemPrompt,
		Prompt:      buildExtractionPrompt(batch),
		MaxTokens:   extractionMaxTokens,
		Temperature: extractionTemperature,
		JSON:        true,
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("pattern extraction: %w", err)
	}

	patterns, err := parseExtraction(raw, batch[0].Category)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("pattern extraction: %w", err)
	}

	telemetry.AddBreadcrumb(ctx, "learning", fmt.Sprintf("extracted %d patterns from %d tickets", len(patterns), len(batch)))
	return patterns, nil
}
