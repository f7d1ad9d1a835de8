package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/telemetry"
)

const (
	retrievalSearchK = 10
	maxKnowledgeRefs = 5

	clarityWeight   = 0.3
	knowledgeWeight = 0.7
)

var systemKeywords = []string{
	"email", "outlook", "exchange", "vpn", "network", "wifi", "firewall", "dns",
	"database", "server", "active directory", "sso", "erp", "crm", "sharepoint",
	"printer", "laptop", "phone", "payroll", "backup", "cloud", "storage",
}

var securityKeywords = []string{
	"breach", "phishing", "malware", "ransomware", "virus", "hacked", "compromised",
	"unauthorized", "suspicious", "data leak", "security incident", "exploit",
}

var scopeKeywords = []string{
	"all users", "everyone", "entire", "company-wide", "whole team", "multiple users",
	"department", "production", "outage", "all offices",
}

var detailMarkers = []string{
	"error", "code", "message", "when", "after", "since", "tried", "screenshot",
}

// ConfidenceEngine scores incoming tickets for auto-response and escalation
type ConfidenceEngine struct {
	embedder EmbeddingClient
	index    ArticleIndex
	articles ArticleRepository
}

// NewConfidenceEngine creates a ConfidenceEngine
func NewConfidenceEngine(embedder EmbeddingClient, index ArticleIndex, articles ArticleRepository) *ConfidenceEngine {
	return &ConfidenceEngine{embedder: embedder, index: index, articles: articles}
}

// ScoreTicket computes the two independent axes of a ticket: confidence that
// the knowledge base can answer it, and complexity that decides escalation.
func (e *ConfidenceEngine) ScoreTicket(ctx context.Context, t domain.IncomingTicket, settings domain.WorkflowSettings) (*domain.TicketScore, error) {
	if strings.TrimSpace(t.Title) == "" && strings.TrimSpace(t.Description) == "" {
		return nil, domain.ValidationError("ticket has no title or description", domain.ErrMissingRequiredField)
	}

	ctx, span := telemetry.StartSpan(ctx, "ConfidenceEngine.ScoreTicket", telemetry.SpanAttributes{
		TicketID:  t.ID,
		Category:  t.Category,
		Operation: "score",
	})
	defer span.End()

	refs, err := e.knowledgeRefs(ctx, t)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	score := &domain.TicketScore{
		Confidence:    Confidence(Clarity(t), refs),
		Complexity:    Complexity(t),
		KnowledgeRefs: refs,
	}
	score.RequiresEscalation = score.Complexity >= settings.ComplexityThreshold
	if score.RequiresEscalation && settings.EscalationEnabled {
		score.SuggestedTeam = settings.EscalationTeamID
	}
	score.ShouldAutoRespond = settings.AutoResponseEnabled && score.Confidence >= settings.ConfidenceThreshold

	return score, nil
}

// knowledgeRefs returns the published articles at least
// RetrievalSimilarityThreshold similar to the ticket, best first
func (e *ConfidenceEngine) knowledgeRefs(ctx context.Context, t domain.IncomingTicket) ([]domain.ArticleMatch, error) {
	query, err := e.embedder.GenerateEmbedding(ctx, strings.TrimSpace(t.Title+"\n"+t.Description))
	if err != nil {
		return nil, fmt.Errorf("embed ticket: %w", err)
	}

	matches, err := e.index.Search(ctx, query, retrievalSearchK)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= domain.RetrievalSimilarityThreshold {
			ids = append(ids, m.ArticleID)
		}
	}
	if len(ids) == 0 {
		return []domain.ArticleMatch{}, nil
	}

	articles, err := e.articles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	published := make(map[string]bool, len(articles))
	for _, a := range articles {
		published[a.ID] = a.IsPublished
	}

	refs := make([]domain.ArticleMatch, 0, maxKnowledgeRefs)
	for _, m := range matches {
		if len(refs) == maxKnowledgeRefs {
			break
		}
		if m.Similarity >= domain.RetrievalSimilarityThreshold && published[m.ArticleID] {
			refs = append(refs, m)
		}
	}
	return refs, nil
}

// Clarity rates how well a ticket describes its problem, from 0 to 1
func Clarity(t domain.IncomingTicket) float64 {
	score := 0.0

	switch words := len(strings.Fields(t.Title)); {
	case words >= 3:
		score += 0.2
	case words >= 1:
		score += 0.1
	}

	switch words := len(strings.Fields(t.Description)); {
	case words >= 30:
		score += 0.4
	case words >= 12:
		score += 0.3
	case words >= 5:
		score += 0.2
	case words >= 1:
		score += 0.1
	}

	text := strings.ToLower(t.Title + " " + t.Description)
	if containsAny(text, detailMarkers) || strings.IndexFunc(text, unicode.IsDigit) >= 0 {
		score += 0.2
	}

	if strings.TrimSpace(t.Category) != "" {
		score += 0.1
	}
	if strings.TrimSpace(t.Priority) != "" {
		score += 0.1
	}

	return math.Min(score, 1)
}

// KnowledgeStrength is the best match similarity, raised toward 1 by each
// additional match
func KnowledgeStrength(refs []domain.ArticleMatch) float64 {
	if len(refs) == 0 {
		return 0
	}
	best := 0.0
	for _, r := range refs {
		best = math.Max(best, r.Similarity)
	}
	best = math.Min(best, 1)
	return best + (1-best)*0.1*float64(len(refs)-1)
}

// Confidence combines clarity and knowledge strength. It never decreases when
// either input grows.
func Confidence(clarity float64, refs []domain.ArticleMatch) float64 {
	c := clarityWeight*clarity + knowledgeWeight*KnowledgeStrength(refs)
	return math.Max(0, math.Min(1, c))
}

// Complexity rates from 0 to 100 how much specialist handling a ticket needs,
// from the systems it touches, security signals and the breadth of impact
func Complexity(t domain.IncomingTicket) int {
	text := strings.ToLower(t.Title + " " + t.Description)
	score := 0

	systems := countMatches(text, systemKeywords)
	score += systems * 15
	if systems >= 2 {
		score += 10
	}

	if security := countMatches(text, securityKeywords); security > 0 {
		score += 30
		if security >= 2 {
			score += 10
		}
	}

	if containsAny(text, scopeKeywords) {
		score += 15
	}

	switch strings.ToLower(t.Priority) {
	case "critical", "urgent":
		score += 10
	case "high":
		score += 5
	}

	return min(score, 100)
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if containsWord(text, k) {
			n++
		}
	}
	return n
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if containsWord(text, k) {
			return true
		}
	}
	return false
}

// containsWord matches keyword at word boundaries, so "sso" does not match
// "password"
func containsWord(text, keyword string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], keyword)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(keyword)
		before := i == 0 || !isWordByte(text[i-1])
		after := end == len(text) || !isWordByte(text[end])
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z'
}
