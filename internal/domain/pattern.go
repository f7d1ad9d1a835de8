package domain

import (
	"fmt"
	"slices"
	"time"
)

const (
	// PromotionMinFrequency is the frequency a pattern needs before it becomes an article
	PromotionMinFrequency = 3
	// PromotionMinSuccessRate is the success rate a pattern needs before it becomes an article
	PromotionMinSuccessRate = 70
)

// ResolutionPattern is a recurring problem and fix mined from resolved tickets
type ResolutionPattern struct {
	ID              string
	Pattern         string
	Resolution      string
	Category        string
	Keywords        []string
	Frequency       int32
	SuccessRate     int32
	SourceTicketIDs []string
	LastUsed        time.Time
	CreatedAt       time.Time
}

// ExtractedPattern is one pattern as proposed by the model, before it is
// matched against stored patterns
type ExtractedPattern struct {
	Pattern     string   `json:"pattern"`
	Resolution  string   `json:"resolution"`
	Category    string   `json:"category"`
	Keywords    []string `json:"keywords"`
	Frequency   int      `json:"frequency"`
	SuccessRate int      `json:"successRate"`
}

// ShouldPromote is the promotion gate from pattern to article. Both bounds are
// inclusive.
func ShouldPromote(frequency, successRate int) bool {
	return frequency >= PromotionMinFrequency && successRate >= PromotionMinSuccessRate
}

// EffectiveFrequency is the larger of the model's estimate and the stored
// counter, so a pattern seen across many sweeps is not held back by a
// conservative estimate
func EffectiveFrequency(extracted ExtractedPattern, stored *ResolutionPattern) int {
	if stored == nil {
		return extracted.Frequency
	}
	return max(extracted.Frequency, int(stored.Frequency))
}

// AddSource appends a ticket id unless it is already recorded and reports
// whether the set changed
func (p *ResolutionPattern) AddSource(ticketID string) bool {
	if slices.Contains(p.SourceTicketIDs, ticketID) {
		return false
	}
	p.SourceTicketIDs = append(p.SourceTicketIDs, ticketID)
	return true
}

// ValidateResolutionPattern validates a ResolutionPattern instance
func ValidateResolutionPattern(p *ResolutionPattern) error {
	if p == nil {
		return fmt.Errorf("resolution pattern cannot be nil")
	}

	if p.ID == "" {
		return fmt.Errorf("resolution pattern ID is required")
	}

	if p.Pattern == "" {
		return fmt.Errorf("resolution pattern Pattern is required")
	}

	if p.Category == "" {
		return fmt.Errorf("resolution pattern Category is required")
	}

	if p.Frequency < 1 {
		return fmt.Errorf("resolution pattern Frequency must be at least 1")
	}

	if p.SuccessRate < 0 || p.SuccessRate > 100 {
		return fmt.Errorf("resolution pattern SuccessRate must be between 0 and 100")
	}

	return nil
}
