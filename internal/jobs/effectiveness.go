package jobs

import (
	"context"
	"fmt"
)

// EffectivenessRecomputer refreshes article effectiveness from feedback
type EffectivenessRecomputer interface {
	RecomputeAll(ctx context.Context) (int, error)
}

// EffectivenessRefresh periodically rewrites every rated article's
// effectiveness score as its average rating / 5
type EffectivenessRefresh struct {
	feedback EffectivenessRecomputer
}

// NewEffectivenessRefresh creates a new EffectivenessRefresh instance
func NewEffectivenessRefresh(feedback EffectivenessRecomputer) *EffectivenessRefresh {
	return &EffectivenessRefresh{feedback: feedback}
}

// ProcessJobs implements the JobProcessor interface
func (r *EffectivenessRefresh) ProcessJobs(ctx context.Context) error {
	if _, err := r.feedback.RecomputeAll(ctx); err != nil {
		return fmt.Errorf("failed to refresh article effectiveness: %w", err)
	}
	return nil
}
