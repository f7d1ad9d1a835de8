package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/pagination"
	"github.com/cloo-solutions/helpdesk-learning/internal/similarity"
)

// MockUUIDGenerator hands out the given ids, then numbered ones
type MockUUIDGenerator struct {
	mu        sync.Mutex
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	if m.callCount <= len(m.uuids) {
		return m.uuids[m.callCount-1]
	}
	return fmt.Sprintf("uuid-%d", m.callCount)
}

// MockCompletionClient is a mock implementation of CompletionClient
type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockQuotaGovernor is a mock implementation of QuotaGovernor
type MockQuotaGovernor struct {
	mock.Mock
}

func (m *MockQuotaGovernor) Acquire(kind domain.CallKind, estimatedTokens int) error {
	args := m.Called(kind, estimatedTokens)
	return args.Error(0)
}

func (m *MockQuotaGovernor) ClampTokens(n int) int {
	args := m.Called(n)
	return args.Int(0)
}

// MockEmbeddingCache is a mock implementation of EmbeddingCache
type MockEmbeddingCache struct {
	mock.Mock
}

func (m *MockEmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]float32), args.Bool(1), args.Error(2)
}

func (m *MockEmbeddingCache) Set(ctx context.Context, text string, embedding []float32) error {
	args := m.Called(ctx, text, embedding)
	return args.Error(0)
}

// MockArchiveStorage is a mock implementation of ArchiveStorage
type MockArchiveStorage struct {
	mock.Mock
}

func (m *MockArchiveStorage) PutArticle(ctx context.Context, articleID string, markdown []byte) error {
	args := m.Called(ctx, articleID, markdown)
	return args.Error(0)
}

func (m *MockArchiveStorage) ArticleDownloadURL(ctx context.Context, articleID string) (string, error) {
	args := m.Called(ctx, articleID)
	return args.String(0), args.Error(1)
}

func (m *MockArchiveStorage) DeleteArticle(ctx context.Context, articleID string) error {
	args := m.Called(ctx, articleID)
	return args.Error(0)
}

func (m *MockArchiveStorage) HasArticle(ctx context.Context, articleID string) (bool, error) {
	args := m.Called(ctx, articleID)
	return args.Bool(0), args.Error(1)
}

// MockSettingsRepository is a mock implementation of SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) Get(ctx context.Context) (*domain.WorkflowSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkflowSettings), args.Error(1)
}

func (m *MockSettingsRepository) Save(ctx context.Context, s domain.WorkflowSettings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

// MockLearningQueueRepository is a mock implementation of LearningQueueRepository
type MockLearningQueueRepository struct {
	mock.Mock
}

func (m *MockLearningQueueRepository) Enqueue(ctx context.Context, item *domain.LearningQueueItem) (bool, error) {
	args := m.Called(ctx, item)
	return args.Bool(0), args.Error(1)
}

func (m *MockLearningQueueRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.LearningQueueItem, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LearningQueueItem), args.Error(1)
}

func (m *MockLearningQueueRepository) Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]*domain.LearningQueueItem, error) {
	args := m.Called(ctx, limit, staleAfter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LearningQueueItem), args.Error(1)
}

func (m *MockLearningQueueRepository) MarkCompleted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLearningQueueRepository) RecordFailure(ctx context.Context, id string, errMsg string) (domain.LearningStatus, error) {
	args := m.Called(ctx, id, errMsg)
	return args.Get(0).(domain.LearningStatus), args.Error(1)
}

func (m *MockLearningQueueRepository) FailPermanently(ctx context.Context, id string, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockLearningQueueRepository) Release(ctx context.Context, id string, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockLearningQueueRepository) ReapStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	args := m.Called(ctx, staleAfter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLearningQueueRepository) Stats(ctx context.Context, since time.Time) (*domain.LearningQueueStats, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LearningQueueStats), args.Error(1)
}

func (m *MockLearningQueueRepository) ListFailed(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.FailedLearningItem, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FailedLearningItem), args.Error(1)
}

// fakeTicketStore serves resolved tickets from memory
type fakeTicketStore struct {
	mu       sync.Mutex
	tickets  map[string]*domain.ResolvedTicket
	comments map[string][]domain.Comment
}

func newFakeTicketStore(tickets ...*domain.ResolvedTicket) *fakeTicketStore {
	s := &fakeTicketStore{
		tickets:  make(map[string]*domain.ResolvedTicket),
		comments: make(map[string][]domain.Comment),
	}
	for _, t := range tickets {
		s.add(t)
	}
	return s
}

func (s *fakeTicketStore) add(t *domain.ResolvedTicket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[t.ID] = t.Comments
	cp := *t
	cp.Comments = nil
	s.tickets[t.ID] = &cp
}

func (s *fakeTicketStore) GetResolvedTicket(_ context.Context, id string) (*domain.ResolvedTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTicketStore) GetRecentResolvedTickets(_ context.Context, days int) ([]*domain.ResolvedTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -days)
	var out []*domain.ResolvedTicket
	for _, t := range s.tickets {
		if t.ResolvedAt != nil && t.ResolvedAt.Before(cutoff) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeTicketStore) GetCommentsForTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Comment{}, s.comments[ticketID]...), nil
}

// memArticleRepository is an in-memory ArticleRepository
type memArticleRepository struct {
	mu       sync.Mutex
	articles map[string]*domain.KnowledgeArticle
}

func newMemArticleRepository() *memArticleRepository {
	return &memArticleRepository{articles: make(map[string]*domain.KnowledgeArticle)}
}

func cloneArticle(a *domain.KnowledgeArticle) *domain.KnowledgeArticle {
	cp := *a
	cp.Tags = slices.Clone(a.Tags)
	cp.SourceTicketIDs = slices.Clone(a.SourceTicketIDs)
	return &cp
}

func (r *memArticleRepository) Create(_ context.Context, a *domain.KnowledgeArticle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[a.ID] = cloneArticle(a)
	return nil
}

func (r *memArticleRepository) GetByID(_ context.Context, id string) (*domain.KnowledgeArticle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return nil, domain.ErrArticleNotFound
	}
	return cloneArticle(a), nil
}

func (r *memArticleRepository) GetByIDs(_ context.Context, ids []string) ([]*domain.KnowledgeArticle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.KnowledgeArticle
	for _, id := range ids {
		if a, ok := r.articles[id]; ok {
			out = append(out, cloneArticle(a))
		}
	}
	return out, nil
}

func (r *memArticleRepository) MergeSource(_ context.Context, id, ticketID string) (*domain.KnowledgeArticle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return nil, domain.ErrArticleNotFound
	}
	a.AddSource(ticketID)
	a.UpdatedAt = time.Now().UTC()
	return cloneArticle(a), nil
}

func (r *memArticleRepository) UpdateEffectiveness(_ context.Context, id string, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return domain.ErrArticleNotFound
	}
	a.EffectivenessScore = score
	return nil
}

func (r *memArticleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.articles[id]; !ok {
		return domain.ErrArticleNotFound
	}
	delete(r.articles, id)
	return nil
}

func (r *memArticleRepository) all() []*domain.KnowledgeArticle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.KnowledgeArticle
	for _, a := range r.articles {
		out = append(out, cloneArticle(a))
	}
	return out
}

// memPatternRepository is an in-memory PatternRepository with exact search
type memPatternRepository struct {
	mu         sync.Mutex
	patterns   map[string]*domain.ResolutionPattern
	embeddings map[string][]float32
}

func newMemPatternRepository() *memPatternRepository {
	return &memPatternRepository{
		patterns:   make(map[string]*domain.ResolutionPattern),
		embeddings: make(map[string][]float32),
	}
}

func clonePattern(p *domain.ResolutionPattern) *domain.ResolutionPattern {
	cp := *p
	cp.Keywords = slices.Clone(p.Keywords)
	cp.SourceTicketIDs = slices.Clone(p.SourceTicketIDs)
	return &cp
}

func (r *memPatternRepository) FindSimilar(_ context.Context, category string, embedding []float32, threshold float64) (*domain.ResolutionPattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.ResolutionPattern
	bestSim := threshold
	for id, p := range r.patterns {
		if p.Category != category {
			continue
		}
		if sim := similarity.Cosine(embedding, r.embeddings[id]); sim >= bestSim {
			best, bestSim = p, sim
		}
	}
	if best == nil {
		return nil, nil
	}
	return clonePattern(best), nil
}

func (r *memPatternRepository) Create(_ context.Context, p *domain.ResolutionPattern, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns[p.ID] = clonePattern(p)
	r.embeddings[p.ID] = slices.Clone(embedding)
	return nil
}

func (r *memPatternRepository) RecordSighting(_ context.Context, id, ticketID string, successRate int) (*domain.ResolutionPattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[id]
	if !ok {
		return nil, domain.ErrPatternNotFound
	}
	if p.AddSource(ticketID) {
		p.SuccessRate = int32((int(p.SuccessRate)*int(p.Frequency) + successRate) / (int(p.Frequency) + 1))
		p.Frequency++
	}
	p.LastUsed = time.Now().UTC()
	return clonePattern(p), nil
}

func (r *memPatternRepository) all() []*domain.ResolutionPattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ResolutionPattern
	for _, p := range r.patterns {
		out = append(out, clonePattern(p))
	}
	return out
}

// memQueue is an in-memory LearningQueueRepository keyed by ticket
type memQueue struct {
	mu    sync.Mutex
	items map[string]*domain.LearningQueueItem
}

func newMemQueue() *memQueue {
	return &memQueue{items: make(map[string]*domain.LearningQueueItem)}
}

func (q *memQueue) Enqueue(_ context.Context, item *domain.LearningQueueItem) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[item.TicketID]; ok {
		return false, nil
	}
	cp := *item
	q.items[item.TicketID] = &cp
	return true, nil
}

func (q *memQueue) GetByTicketID(_ context.Context, ticketID string) (*domain.LearningQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[ticketID]
	if !ok {
		return nil, domain.ErrQueueItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (q *memQueue) Claim(context.Context, int, time.Duration) ([]*domain.LearningQueueItem, error) {
	return nil, nil
}

func (q *memQueue) MarkCompleted(context.Context, string) error { return nil }

func (q *memQueue) RecordFailure(context.Context, string, string) (domain.LearningStatus, error) {
	return domain.LearningStatusPending, nil
}

func (q *memQueue) FailPermanently(context.Context, string, string) error { return nil }

func (q *memQueue) Release(context.Context, string, string) error { return nil }

func (q *memQueue) ReapStale(context.Context, time.Duration) (int64, error) { return 0, nil }

func (q *memQueue) Stats(context.Context, time.Time) (*domain.LearningQueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &domain.LearningQueueStats{Pending: int64(len(q.items))}, nil
}

func (q *memQueue) ListFailed(context.Context, *pagination.Cursor, int) ([]*domain.FailedLearningItem, error) {
	return nil, nil
}

// fakeTxRunner serializes transactions over the in-memory repositories
type fakeTxRunner struct {
	mu       sync.Mutex
	articles *memArticleRepository
	index    *similarity.MemoryIndex
	patterns *memPatternRepository
	locks    []string
}

func (r *fakeTxRunner) WithTx(_ context.Context, fn func(repos TxRepositories) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r)
}

func (r *fakeTxRunner) Articles() ArticleRepository { return r.articles }
func (r *fakeTxRunner) ArticleIndex() ArticleIndex { return r.index }
func (r *fakeTxRunner) Patterns() PatternRepository { return r.patterns }
func (r *fakeTxRunner) Lock(_ context.Context, key string) error {
	r.locks = append(r.locks, key)
	return nil
}

// keywordEmbedder embeds text as the set of support topics it mentions, so
// texts about the same topic are identical and unrelated ones orthogonal
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
}

var embeddingTopics = [][]string{
	{"password", "log in", "login", "credentials", "sign in", "locked out", "account"},
	{"email", "outlook", "mailbox", "inbox"},
	{"vpn", "wifi", "network", "internet"},
	{"printer", "print", "toner"},
	{"phishing", "malware", "ransomware", "virus"},
}

func (e *keywordEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	text = strings.ToLower(text)
	vec := make([]float32, len(embeddingTopics)+1)
	hit := false
	for i, words := range embeddingTopics {
		for _, w := range words {
			if strings.Contains(text, w) {
				vec[i] = 1
				hit = true
				break
			}
		}
	}
	if !hit {
		vec[len(embeddingTopics)] = 1
	}
	return vec, nil
}

// scriptedCompleter answers extraction and generation prompts with fixed
// responses and counts the calls of each
type scriptedCompleter struct {
	mu          sync.Mutex
	extraction  string
	article     string
	extractErr  error
	generateErr error
	extracts    int
	generations int
}

func (c *scriptedCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch req.System {
	case extractionSystemPrompt:
		c.extracts++
		return c.extraction, c.extractErr
	case generationSystemPrompt:
		c.generations++
		return c.article, c.generateErr
	}
	return "", fmt.Errorf("unexpected prompt")
}

const passwordResetExtraction = `{"patterns": [{
  "pattern": "User forgot password and is locked out of their account",
  "resolution": "Reset the password from the admin console and unlock the account",
  "category": "account",
  "keywords": ["password", "reset", "locked"],
  "frequency": 5,
  "successRate": 90
}]}`

const passwordResetArticle = `{
  "title": "How to reset a forgotten password",
  "summary": "Steps to reset a password and unlock an account after failed login attempts.",
  "content": "## Problem\nUser cannot log in.\n## Cause\nForgotten password.\n## Steps to resolve\n1. Open the admin console\n2. Reset the password\n## Prevention\nEnable self-service reset.",
  "tags": ["password", "login", "account"],
  "category": "account",
  "difficulty": "beginner",
  "estimatedReadTime": 3,
  "confidence": 85
}`

func resolvedTicket(id, category, title, description, resolution string, resolvedAgo time.Duration) *domain.ResolvedTicket {
	resolvedAt := time.Now().Add(-resolvedAgo).UTC()
	return &domain.ResolvedTicket{
		ID:          id,
		Title:       title,
		Description: description,
		Category:    category,
		Priority:    "medium",
		Resolution:  resolution,
		Comments: []domain.Comment{
			{ID: id + "-c1", TicketID: id, Author: "agent", Body: "Reset done, user confirmed it works now."},
		},
		ResolvedAt: &resolvedAt,
	}
}

func passwordResetTickets(n int) []*domain.ResolvedTicket {
	tickets := make([]*domain.ResolvedTicket, n)
	for i := range tickets {
		tickets[i] = resolvedTicket(
			fmt.Sprintf("ticket-%d", i+1),
			"account",
			"Forgot my password",
			"I forgot my password and I am locked out after too many login attempts.",
			"Reset the password from the admin console, then unlocked the account. User confirmed login works.",
			time.Duration(i+1)*time.Hour,
		)
	}
	return tickets
}

// learningHarness wires the learning pipeline over in-memory collaborators
type learningHarness struct {
	tickets   *fakeTicketStore
	queue     *memQueue
	articles  *memArticleRepository
	patterns  *memPatternRepository
	index     *similarity.MemoryIndex
	tx        *fakeTxRunner
	embedder  *keywordEmbedder
	completer *scriptedCompleter
	service   *LearningService
}

func newLearningHarness(tickets ...*domain.ResolvedTicket) *learningHarness {
	h := &learningHarness{
		tickets:   newFakeTicketStore(tickets...),
		queue:     newMemQueue(),
		articles:  newMemArticleRepository(),
		patterns:  newMemPatternRepository(),
		index:     similarity.NewMemoryIndex(),
		embedder:  &keywordEmbedder{},
		completer: &scriptedCompleter{extraction: passwordResetExtraction, article: passwordResetArticle},
	}
	h.tx = &fakeTxRunner{articles: h.articles, index: h.index, patterns: h.patterns}

	uuids := NewMockUUIDGenerator()
	generator := NewArticleGeneratorWithUUIDGen(h.completer, h.embedder, h.articles, h.index, h.tx, nil, uuids)
	h.service = NewLearningServiceWithUUIDGen(
		h.tickets, h.queue, NewPatternExtractor(h.completer), generator, h.embedder, h.tx, uuids)
	return h
}
