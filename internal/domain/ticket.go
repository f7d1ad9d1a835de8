package domain

import (
	"fmt"
	"strings"
	"time"
)

// ResolvedTicket is a resolved helpdesk ticket as read from the ticket store.
// It is never written by the learning engine.
type ResolvedTicket struct {
	ID          string
	Title       string
	Description string
	Category    string
	Priority    string
	Resolution  string
	Comments    []Comment
	ResolvedAt  *time.Time
}

// Comment is one entry of a ticket's transcript
type Comment struct {
	ID        string
	TicketID  string
	Author    string
	Body      string
	Internal  bool
	CreatedAt time.Time
}

// ValidateResolvedTicket checks that a ticket can feed the learning pipeline
func ValidateResolvedTicket(t *ResolvedTicket) error {
	if t == nil {
		return ValidationError("ticket cannot be nil", nil)
	}
	if t.ID == "" {
		return ValidationError("ticket ID is required", ErrMissingRequiredField)
	}
	if t.ResolvedAt == nil {
		return ErrTicketNotResolved
	}
	if strings.TrimSpace(t.Resolution) == "" {
		return ErrMissingResolution
	}
	return nil
}

// Transcript renders the comments as "author: body" lines
func (t *ResolvedTicket) Transcript() string {
	var b strings.Builder
	for _, c := range t.Comments {
		body := strings.TrimSpace(c.Body)
		if body == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", c.Author, body)
	}
	return b.String()
}

var resolutionStepMarkers = []string{
	"1.", "2.", "step", "first", "then", "next", "finally", "- ",
}

var resolutionVerificationMarkers = []string{
	"confirmed", "verified", "works now", "resolved", "fixed", "working",
}

// ResolutionScore rates how useful a resolved ticket is as article material,
// from 0 to 100. It rewards a substantial resolution, explicit steps, a
// confirmed outcome, a described problem and an active transcript.
func ResolutionScore(t *ResolvedTicket) int {
	if t == nil {
		return 0
	}
	resolution := strings.ToLower(strings.TrimSpace(t.Resolution))
	if resolution == "" {
		return 0
	}

	score := 0
	switch words := len(strings.Fields(resolution)); {
	case words >= 60:
		score += 35
	case words >= 25:
		score += 25
	case words >= 10:
		score += 15
	default:
		score += 5
	}

	steps := 0
	for _, m := range resolutionStepMarkers {
		if strings.Contains(resolution, m) {
			steps++
		}
	}
	score += min(steps*5, 20)

	transcript := strings.ToLower(t.Transcript())
	for _, m := range resolutionVerificationMarkers {
		if strings.Contains(resolution, m) || strings.Contains(transcript, m) {
			score += 15
			break
		}
	}

	if len(strings.Fields(t.Description)) >= 10 {
		score += 15
	} else if strings.TrimSpace(t.Description) != "" {
		score += 5
	}

	public := 0
	for _, c := range t.Comments {
		if !c.Internal && strings.TrimSpace(c.Body) != "" {
			public++
		}
	}
	score += min(public*5, 15)

	return min(score, 100)
}
