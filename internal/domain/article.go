package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// CreatedByAILearning marks articles generated by the learning pipeline
const CreatedByAILearning = "ai-learning"

const (
	// PublishConfidenceThreshold is the model confidence an article needs to
	// publish without review
	PublishConfidenceThreshold = 70
	// DedupSimilarityThreshold is the similarity at which a new article is
	// folded into an existing one
	DedupSimilarityThreshold = 0.9
	// RetrievalSimilarityThreshold is the similarity at which an article counts
	// as a knowledge match for a ticket
	RetrievalSimilarityThreshold = 0.3
)

const (
	MaxArticleTitleLength   = 100
	MaxArticleSummaryLength = 200
	MinArticleTags          = 3
	MaxArticleTags          = 5
)

// Difficulty of following an article
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// KnowledgeArticle is a helpdesk knowledge base article
type KnowledgeArticle struct {
	ID                 string
	Title              string
	Summary            string
	Content            string
	Category           string
	Tags               []string
	Difficulty         Difficulty
	ReadTimeMinutes    int32
	Confidence         int32
	IsPublished        bool
	EffectivenessScore float64
	SourceTicketIDs    []string
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ArticleDraft is an article as produced by the model
type ArticleDraft struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags"`
	Category        string   `json:"category"`
	Difficulty      string   `json:"difficulty"`
	ReadTimeMinutes int      `json:"estimatedReadTime"`
	Confidence      int      `json:"confidence"`
}

// ArticleMatch is a similarity hit against the article embeddings
type ArticleMatch struct {
	ArticleID  string  `json:"article_id"`
	Similarity float64 `json:"similarity"`
}

// DedupText is the text compared when looking for an existing article
func DedupText(title, summary string) string {
	return title + "\n" + summary
}

// EmbeddingText is the text embedded for an article
func (a *KnowledgeArticle) EmbeddingText() string {
	return a.Title + "\n" + a.Summary + "\n" + a.Content
}

// ShouldPublish is the publish policy of generated articles
func ShouldPublish(confidence int, approvalRequired bool) bool {
	return confidence >= PublishConfidenceThreshold && !approvalRequired
}

// AcceptsMerge reports whether a generated article may be folded into a.
// Published articles and unreviewed learning drafts qualify.
func (a *KnowledgeArticle) AcceptsMerge() bool {
	return a.IsPublished || a.CreatedBy == CreatedByAILearning
}

// AddSource appends a ticket id unless it is already recorded and reports
// whether the set changed
func (a *KnowledgeArticle) AddSource(ticketID string) bool {
	if slices.Contains(a.SourceTicketIDs, ticketID) {
		return false
	}
	a.SourceTicketIDs = append(a.SourceTicketIDs, ticketID)
	return true
}

// ValidateArticleDraft checks the model's article against the generation
// contract
func ValidateArticleDraft(d *ArticleDraft) error {
	if d == nil {
		return fmt.Errorf("article is empty")
	}
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if len([]rune(title)) > MaxArticleTitleLength {
		return fmt.Errorf("title exceeds %d characters", MaxArticleTitleLength)
	}
	summary := strings.TrimSpace(d.Summary)
	if summary == "" {
		return fmt.Errorf("summary is required")
	}
	if len([]rune(summary)) > MaxArticleSummaryLength {
		return fmt.Errorf("summary exceeds %d characters", MaxArticleSummaryLength)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if len(d.Tags) < MinArticleTags || len(d.Tags) > MaxArticleTags {
		return fmt.Errorf("expected %d to %d tags, got %d", MinArticleTags, MaxArticleTags, len(d.Tags))
	}
	for _, tag := range d.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tags cannot be empty")
		}
	}
	if strings.TrimSpace(d.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if !IsValidDifficulty(Difficulty(d.Difficulty)) {
		return fmt.Errorf("difficulty is invalid: %q", d.Difficulty)
	}
	if d.ReadTimeMinutes < 1 {
		return fmt.Errorf("estimatedReadTime must be at least 1")
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100")
	}
	return nil
}

// IsValidDifficulty checks if a Difficulty is valid
func IsValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// ValidateKnowledgeArticle validates a KnowledgeArticle instance
func ValidateKnowledgeArticle(a *KnowledgeArticle) error {
	if a == nil {
		return fmt.Errorf("knowledge article cannot be nil")
	}

	if a.ID == "" {
		return fmt.Errorf("knowledge article ID is required")
	}

	if a.Title == "" {
		return fmt.Errorf("knowledge article Title is required")
	}

	if a.Content == "" {
		return fmt.Errorf("knowledge article Content is required")
	}

	if a.Category == "" {
		return fmt.Errorf("knowledge article Category is required")
	}

	if a.CreatedBy == "" {
		return fmt.Errorf("knowledge article CreatedBy is required")
	}

	if a.EffectivenessScore < 0 || a.EffectivenessScore > 1 {
		return fmt.Errorf("knowledge article EffectivenessScore must be between 0 and 1")
	}

	return nil
}

// EffectivenessFromRatings converts the mean of 1..5 ratings to a 0..1 score
func EffectivenessFromRatings(avgRating float64) float64 {
	score := avgRating / 5
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ArticleFeedback is a rating left on an article
type ArticleFeedback struct {
	ID        string
	ArticleID string
	Rating    int32
	CreatedAt time.Time
}

// ValidateRating checks a 1..5 rating
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return nil
}
