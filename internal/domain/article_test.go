package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() *ArticleDraft {
	return &ArticleDraft{
		Title:           "Resetting a forgotten password",
		Summary:         "How to reset a user's password from the self-service portal.",
		Content:         "## Problem\n...\n## Steps\n1. ...",
		Tags:            []string{"password", "account", "login"},
		Category:        "account",
		Difficulty:      "beginner",
		ReadTimeMinutes: 3,
		Confidence:      85,
	}
}

func TestValidateArticleDraft(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *ArticleDraft)
		errMsg string
	}{
		{"valid", func(d *ArticleDraft) {}, ""},
		{"title too long", func(d *ArticleDraft) { d.Title = strings.Repeat("a", 101) }, "title"},
		{"title at limit", func(d *ArticleDraft) { d.Title = strings.Repeat("a", 100) }, ""},
		{"empty title", func(d *ArticleDraft) { d.Title = "  " }, "title"},
		{"summary too long", func(d *ArticleDraft) { d.Summary = strings.Repeat("b", 201) }, "summary"},
		{"missing content", func(d *ArticleDraft) { d.Content = "" }, "content"},
		{"two tags", func(d *ArticleDraft) { d.Tags = []string{"a", "b"} }, "tags"},
		{"six tags", func(d *ArticleDraft) { d.Tags = []string{"a", "b", "c", "d", "e", "f"} }, "tags"},
		{"blank tag", func(d *ArticleDraft) { d.Tags = []string{"a", "", "c"} }, "tags"},
		{"missing category", func(d *ArticleDraft) { d.Category = "" }, "category"},
		{"bad difficulty", func(d *ArticleDraft) { d.Difficulty = "expert" }, "difficulty"},
		{"zero read time", func(d *ArticleDraft) { d.ReadTimeMinutes = 0 }, "estimatedReadTime"},
		{"confidence over 100", func(d *ArticleDraft) { d.Confidence = 101 }, "confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(d)
			err := ValidateArticleDraft(d)
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestShouldPublish(t *testing.T) {
	assert.True(t, ShouldPublish(70, false))
	assert.False(t, ShouldPublish(69, false))
	assert.False(t, ShouldPublish(95, true))
}

func TestKnowledgeArticleAcceptsMerge(t *testing.T) {
	assert.True(t, (&KnowledgeArticle{IsPublished: true, CreatedBy: "u1"}).AcceptsMerge())
	assert.True(t, (&KnowledgeArticle{CreatedBy: CreatedByAILearning}).AcceptsMerge())
	assert.False(t, (&KnowledgeArticle{CreatedBy: "u1"}).AcceptsMerge())
}

func TestKnowledgeArticleAddSource(t *testing.T) {
	a := &KnowledgeArticle{}
	assert.True(t, a.AddSource("t1"))
	assert.False(t, a.AddSource("t1"))
	assert.Equal(t, []string{"t1"}, a.SourceTicketIDs)
}

func TestEffectivenessFromRatings(t *testing.T) {
	assert.InDelta(t, 0.8, EffectivenessFromRatings(4), 1e-9)
	assert.InDelta(t, 1.0, EffectivenessFromRatings(5), 1e-9)
	assert.InDelta(t, 0.0, EffectivenessFromRatings(-1), 1e-9)
}

func TestValidateRating(t *testing.T) {
	require.NoError(t, ValidateRating(1))
	require.NoError(t, ValidateRating(5))
	assert.ErrorIs(t, ValidateRating(0), ErrInvalidRating)
	assert.ErrorIs(t, ValidateRating(6), ErrInvalidRating)
}

func TestValidateKnowledgeArticle(t *testing.T) {
	a := &KnowledgeArticle{ID: "a1", Title: "t", Content: "c", Category: "account", CreatedBy: CreatedByAILearning}
	require.NoError(t, ValidateKnowledgeArticle(a))

	a.EffectivenessScore = 1.5
	assert.ErrorContains(t, ValidateKnowledgeArticle(a), "EffectivenessScore")

	a.EffectivenessScore = 0
	a.CreatedBy = ""
	assert.ErrorContains(t, ValidateKnowledgeArticle(a), "CreatedBy")
}
