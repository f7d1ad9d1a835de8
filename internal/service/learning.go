package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/pagination"
	"github.com/cloo-solutions/helpdesk-learning/internal/telemetry"
)

const (
	// DefaultSeedDays is the look-back window of SeedHistoricalTickets
	DefaultSeedDays = 90
	// peerWindowDays bounds how far back same-category peers are gathered
	peerWindowDays = 30

	patternDedupThreshold = 0.9
	defaultFailedPageSize = 20
	maxFailedPageSize     = 100
)

// LearningOutcome summarizes what one ticket contributed to the knowledge base
type LearningOutcome struct {
	TicketID          string
	BatchSize         int
	PatternsExtracted int
	PatternsPromoted  int
	Articles          []*GenerationResult
	// SkipReason is set when the ticket produced no article
	SkipReason string
}

// SeedResult reports a historical seeding run
type SeedResult struct {
	Scanned  int `json:"scanned"`
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}

// LearningService turns resolved tickets into resolution patterns and
// knowledge articles
type LearningService struct {
	tickets   TicketStore
	queue     LearningQueueRepository
	extractor *PatternExtractor
	generator *ArticleGenerator
	embedder  EmbeddingClient
	tx        TxRunner
	uuidGen   UUIDGenerator
	now       func() time.Time
	seedDays  int
}

// NewLearningService creates a new LearningService instance
func NewLearningService(
	tickets TicketStore,
	queue LearningQueueRepository,
	extractor *PatternExtractor,
	generator *ArticleGenerator,
	embedder EmbeddingClient,
	tx TxRunner,
) *LearningService {
	return NewLearningServiceWithUUIDGen(tickets, queue, extractor, generator, embedder, tx, &DefaultUUIDGenerator{})
}

// NewLearningServiceWithUUIDGen creates a LearningService with custom UUID generator (for testing)
func NewLearningServiceWithUUIDGen(
	tickets TicketStore,
	queue LearningQueueRepository,
	extractor *PatternExtractor,
	generator *ArticleGenerator,
	embedder EmbeddingClient,
	tx TxRunner,
	uuidGen UUIDGenerator,
) *LearningService {
	return &LearningService{
		tickets:   tickets,
		queue:     queue,
		extractor: extractor,
		generator: generator,
		embedder:  embedder,
		tx:        tx,
		uuidGen:   uuidGen,
		now:       time.Now,
		seedDays:  DefaultSeedDays,
	}
}

// WithSeedDays sets the look-back window used when a seed request names none
func (s *LearningService) WithSeedDays(days int) *LearningService {
	if days > 0 {
		s.seedDays = days
	}
	return s
}

// Enqueue adds a resolved ticket to the learning queue. Tickets that cannot
// feed the pipeline are rejected with a validation error and never queued.
// It reports whether a new item was created; re-enqueueing is a no-op.
func (s *LearningService) Enqueue(ctx context.Context, ticketID string) (bool, error) {
	if ticketID == "" {
		return false, domain.ValidationError("ticket ID is required", domain.ErrMissingRequiredField)
	}

	ticket, err := s.tickets.GetResolvedTicket(ctx, ticketID)
	if err != nil {
		return false, err
	}
	if err := domain.ValidateResolvedTicket(ticket); err != nil {
		return false, err
	}

	return s.enqueue(ctx, ticket.ID)
}

func (s *LearningService) enqueue(ctx context.Context, ticketID string) (bool, error) {
	item := domain.NewLearningQueueItem(s.uuidGen.NewString(), ticketID, s.now().UTC())
	created, err := s.queue.Enqueue(ctx, item)
	if err != nil {
		return false, fmt.Errorf("enqueue ticket %s: %w", ticketID, err)
	}
	return created, nil
}

// SeedHistoricalTickets queues every resolved ticket of the last days days.
// Running it again only queues tickets that are not queued yet.
func (s *LearningService) SeedHistoricalTickets(ctx context.Context, days int) (*SeedResult, error) {
	if days <= 0 {
		days = s.seedDays
	}

	tickets, err := s.tickets.GetRecentResolvedTickets(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("load resolved tickets: %w", err)
	}

	result := &SeedResult{Scanned: len(tickets)}
	for _, t := range tickets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := domain.ValidateResolvedTicket(t); err != nil {
			result.Skipped++
			continue
		}
		created, err := s.enqueue(ctx, t.ID)
		if err != nil {
			return result, err
		}
		if created {
			result.Enqueued++
		} else {
			result.Skipped++
		}
	}

	log.Printf("learning: seeded %d of %d resolved tickets from the last %d days", result.Enqueued, result.Scanned, days)
	return result, nil
}

// LearnFromTicket runs the learning pipeline for one ticket: extract patterns
// from its category batch, record them, and write or merge an article for
// every promoted pattern. A ticket whose batch promotes nothing becomes an
// article on its own only when its resolution scores at least
// settings.MinResolutionScore. Re-running for the same ticket never counts it
// twice.
func (s *LearningService) LearnFromTicket(ctx context.Context, ticketID string, settings domain.WorkflowSettings) (*LearningOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "LearningService.LearnFromTicket", telemetry.SpanAttributes{
		TicketID:  ticketID,
		Operation: "learn",
	})
	defer span.End()

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	batch, err := s.categoryBatch(ctx, ticket)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	outcome := &LearningOutcome{TicketID: ticket.ID, BatchSize: len(batch)}

	patterns, err := s.extractor.Extract(ctx, batch)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	outcome.PatternsExtracted = len(patterns)

	for _, p := range patterns {
		stored, err := s.recordPattern(ctx, p, ticket.ID)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		if !domain.ShouldPromote(domain.EffectiveFrequency(p, stored), int(stored.SuccessRate)) {
			continue
		}
		outcome.PatternsPromoted++

		result, err := s.generator.Generate(ctx, GenerationSource{Pattern: stored, Ticket: ticket}, settings)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		outcome.Articles = append(outcome.Articles, result)
	}

	if outcome.PatternsPromoted > 0 {
		return outcome, nil
	}

	if score := domain.ResolutionScore(ticket); score < settings.MinResolutionScore {
		outcome.SkipReason = fmt.Sprintf("no promoted pattern and resolution score %d below %d", score, settings.MinResolutionScore)
		return outcome, nil
	}

	result, err := s.generator.Generate(ctx, GenerationSource{Ticket: ticket}, settings)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	outcome.Articles = append(outcome.Articles, result)
	return outcome, nil
}

// loadTicket reads a ticket with its transcript. A ticket that vanished or is
// no longer resolved cannot succeed on retry and fails as a validation error.
func (s *LearningService) loadTicket(ctx context.Context, ticketID string) (*domain.ResolvedTicket, error) {
	ticket, err := s.tickets.GetResolvedTicket(ctx, ticketID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.ValidationError("ticket is no longer available", err)
		}
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if err := domain.ValidateResolvedTicket(ticket); err != nil {
		return nil, err
	}

	if ticket.Comments == nil {
		comments, err := s.tickets.GetCommentsForTicket(ctx, ticket.ID)
		if err != nil {
			return nil, fmt.Errorf("load comments of ticket %s: %w", ticket.ID, err)
		}
		ticket.Comments = comments
	}
	return ticket, nil
}

// categoryBatch returns the ticket followed by its most recently resolved
// same-category peers, at most MaxExtractionBatch tickets in total
func (s *LearningService) categoryBatch(ctx context.Context, ticket *domain.ResolvedTicket) ([]*domain.ResolvedTicket, error) {
	batch := []*domain.ResolvedTicket{ticket}
	if ticket.Category == "" {
		return batch, nil
	}

	recent, err := s.tickets.GetRecentResolvedTickets(ctx, peerWindowDays)
	if err != nil {
		return nil, fmt.Errorf("load category peers: %w", err)
	}

	peers := make([]*domain.ResolvedTicket, 0, len(recent))
	for _, t := range recent {
		if t.ID == ticket.ID || t.Category != ticket.Category {
			continue
		}
		if domain.ValidateResolvedTicket(t) != nil {
			continue
		}
		peers = append(peers, t)
	}
	slices.SortStableFunc(peers, func(a, b *domain.ResolvedTicket) int {
		return b.ResolvedAt.Compare(*a.ResolvedAt)
	})

	for _, p := range peers {
		if len(batch) == MaxExtractionBatch {
			break
		}
		if p.Comments == nil {
			comments, err := s.tickets.GetCommentsForTicket(ctx, p.ID)
			if err != nil {
				return nil, fmt.Errorf("load comments of ticket %s: %w", p.ID, err)
			}
			p.Comments = comments
		}
		batch = append(batch, p)
	}
	return batch, nil
}

// recordPattern stores an extracted pattern, or counts the ticket as another
// sighting of a near-identical pattern of the same category
func (s *LearningService) recordPattern(ctx context.Context, p domain.ExtractedPattern, ticketID string) (*domain.ResolutionPattern, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, p.Pattern+"\n"+p.Resolution)
	if err != nil {
		return nil, fmt.Errorf("embed pattern: %w", err)
	}

	var stored *domain.ResolutionPattern
	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Lock(ctx, "resolution_patterns:"+p.Category); err != nil {
			return err
		}

		existing, err := repos.Patterns().FindSimilar(ctx, p.Category, embedding, patternDedupThreshold)
		if err != nil {
			return fmt.Errorf("find similar pattern: %w", err)
		}
		if existing != nil {
			stored, err = repos.Patterns().RecordSighting(ctx, existing.ID, ticketID, p.SuccessRate)
			if err != nil {
				return fmt.Errorf("record pattern sighting: %w", err)
			}
			return nil
		}

		now := s.now().UTC()
		stored = &domain.ResolutionPattern{
			ID:              s.uuidGen.NewString(),
			Pattern:         p.Pattern,
			Resolution:      p.Resolution,
			Category:        p.Category,
			Keywords:        p.Keywords,
			Frequency:       1,
			SuccessRate:     int32(p.SuccessRate),
			SourceTicketIDs: []string{ticketID},
			LastUsed:        now,
			CreatedAt:       now,
		}
		if err := domain.ValidateResolutionPattern(stored); err != nil {
			return domain.NewMalformedResponse(err.Error(), p.Pattern)
		}
		if err := repos.Patterns().Create(ctx, stored, embedding); err != nil {
			return fmt.Errorf("create pattern: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Status returns the operator counts of the learning queue
func (s *LearningService) Status(ctx context.Context) (*domain.LearningQueueStats, error) {
	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.queue.Stats(ctx, startOfDay)
}

// ListFailed pages through failed queue items, most recently failed first
func (s *LearningService) ListFailed(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.FailedLearningItem], error) {
	limit = pagination.ClampLimit(limit, defaultFailedPageSize, maxFailedPageSize)

	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.ValidationError("invalid cursor", err)
	}

	items, err := s.queue.ListFailed(ctx, c, limit+1)
	if err != nil {
		return nil, err
	}

	return pagination.NewPage(items, limit, func(i *domain.FailedLearningItem) pagination.Cursor {
		return pagination.Cursor{LastID: i.ID, Timestamp: i.UpdatedAt}
	}), nil
}
