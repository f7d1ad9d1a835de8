package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

const (
	// promptFieldLimit bounds each free-text ticket field in a prompt
	promptFieldLimit = 280

	extractionMaxTokens   = 1200
	extractionTemperature = 0.2
	generationMaxTokens   = 1800
	generationTemperature = 0.4
)

const extractionSystemPrompt = `You are a helpdesk analyst. You read batches of resolved support tickets ` +
	`and identify recurring problems and the resolutions that worked. Respond only with JSON.`

const generationSystemPrompt = `You are a technical writer for an IT helpdesk knowledge base. ` +
	`You turn resolved support issues into clear, reusable articles. Respond only with JSON.`

func buildExtractionPrompt(batch []*domain.ResolvedTicket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these %d resolved %s tickets.\n\n", len(batch), batch[0].Category)

	for i, t := range batch {
		fmt.Fprintf(&b, "Ticket %d\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", truncateRunes(t.Title, promptFieldLimit))
		fmt.Fprintf(&b, "Category: %s\n", t.Category)
		fmt.Fprintf(&b, "Priority: %s\n", t.Priority)
		fmt.Fprintf(&b, "Description: %s\n", truncateRunes(t.Description, promptFieldLimit))
		fmt.Fprintf(&b, "Resolution: %s\n", truncateRunes(t.Resolution, promptFieldLimit))
		if transcript := t.Transcript(); transcript != "" {
			fmt.Fprintf(&b, "Comments:\n%s", truncateRunes(transcript, promptFieldLimit))
		}
		b.WriteString("\n")
	}

	b.WriteString(`Identify at most 5 recurring problem patterns and how they were resolved.
Return a JSON object of the form:
{"patterns": [{"pattern": "short description of the recurring problem",
  "resolution": "the resolution that worked",
  "category": "ticket category",
  "keywords": ["keyword"],
  "frequency": 1-10 (how many of these tickets show the pattern),
  "successRate": 0-100 (how often the resolution fixed the problem)}]}
Return {"patterns": []} if there is no recurring pattern.`)
	return b.String()
}

func buildGenerationPrompt(src GenerationSource) string {
	var b strings.Builder

	if src.Pattern != nil {
		b.WriteString("Write a knowledge base article for this recurring support issue.\n\n")
		fmt.Fprintf(&b, "Problem: %s\n", src.Pattern.Pattern)
		fmt.Fprintf(&b, "Resolution: %s\n", src.Pattern.Resolution)
		fmt.Fprintf(&b, "Category: %s\n", src.Pattern.Category)
		if len(src.Pattern.Keywords) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(src.Pattern.Keywords, ", "))
		}
		fmt.Fprintf(&b, "Seen in %d tickets with a %d%% success rate.\n", src.Pattern.Frequency, src.Pattern.SuccessRate)
	} else {
		b.WriteString("Write a knowledge base article from this resolved support ticket.\n\n")
	}

	if t := src.Ticket; t != nil {
		b.WriteString("\nExample ticket\n")
		fmt.Fprintf(&b, "Title: %s\n", truncateRunes(t.Title, promptFieldLimit))
		fmt.Fprintf(&b, "Category: %s\n", t.Category)
		fmt.Fprintf(&b, "Description: %s\n", truncateRunes(t.Description, promptFieldLimit*2))
		fmt.Fprintf(&b, "Resolution: %s\n", truncateRunes(t.Resolution, promptFieldLimit*2))
		if transcript := t.Transcript(); transcript != "" {
			fmt.Fprintf(&b, "Comments:\n%s", truncateRunes(transcript, promptFieldLimit))
		}
	}

	fmt.Fprintf(&b, `
Return a JSON object with exactly these fields:
{"title": "at most %d characters",
 "summary": "at most %d characters",
 "content": "markdown with sections: Problem, Cause, Steps to resolve, Prevention",
 "tags": ["%d to %d tags"],
 "category": "category",
 "difficulty": "beginner | intermediate | advanced",
 "estimatedReadTime": minutes as an integer,
 "confidence": 0-100 (how confident you are the article is correct and complete)}`,
		domain.MaxArticleTitleLength, domain.MaxArticleSummaryLength,
		domain.MinArticleTags, domain.MaxArticleTags)
	return b.String()
}
