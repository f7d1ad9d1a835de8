package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/metrics"
	"github.com/cloo-solutions/helpdesk-learning/internal/service"
	"github.com/cloo-solutions/helpdesk-learning/internal/telemetry"
)

// Queue outcome labels
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeDeferred  = "deferred"
)

// LearningQueue is the part of the learning queue a sweep drives
type LearningQueue interface {
	ReapStale(ctx context.Context, staleAfter time.Duration) (int64, error)
	Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]*domain.LearningQueueItem, error)
	MarkCompleted(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, errMsg string) (domain.LearningStatus, error)
	FailPermanently(ctx context.Context, id string, errMsg string) error
	Release(ctx context.Context, id string, reason string) error
}

// Learner runs the learning pipeline for one ticket
type Learner interface {
	LearnFromTicket(ctx context.Context, ticketID string, settings domain.WorkflowSettings) (*service.LearningOutcome, error)
}

// SettingsSource provides the workflow settings snapshot of a sweep
type SettingsSource interface {
	Snapshot(ctx context.Context) (domain.WorkflowSettings, error)
}

// PolicySyncer receives the rate policy of each settings snapshot
type PolicySyncer interface {
	SetPolicy(p domain.RateLimitPolicy) error
}

// SweepConfig bounds one sweep
type SweepConfig struct {
	BatchSize   int
	Concurrency int
	StaleAfter  time.Duration
}

// DefaultSweepConfig returns the default sweep bounds
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		BatchSize:   10,
		Concurrency: 2,
		StaleAfter:  30 * time.Minute,
	}
}

// SweepResult summarises one sweep
type SweepResult struct {
	Skipped    bool   `json:"skipped"`
	Reaped     int64  `json:"reaped"`
	Claimed    int    `json:"claimed"`
	Completed  int    `json:"completed"`
	Retried    int    `json:"retried"`
	Failed     int    `json:"failed"`
	Deferred   int    `json:"deferred"`
	Articles   int    `json:"articles"`
	Halted     bool   `json:"halted"`
	HaltReason string `json:"halt_reason,omitempty"`
}

// LearningSweep claims pending queue items and runs the learning pipeline on
// each, recording the outcome in the queue's state machine.
type LearningSweep struct {
	queue    LearningQueue
	learner  Learner
	settings SettingsSource
	policy   PolicySyncer
	cfg      SweepConfig

	running sync.Mutex
}

// NewLearningSweep creates a new LearningSweep. policy may be nil.
func NewLearningSweep(queue LearningQueue, learner Learner, settings SettingsSource, policy PolicySyncer, cfg SweepConfig) *LearningSweep {
	def := DefaultSweepConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	return &LearningSweep{
		queue:    queue,
		learner:  learner,
		settings: settings,
		policy:   policy,
		cfg:      cfg,
	}
}

// ProcessJobs implements the JobProcessor interface
func (s *LearningSweep) ProcessJobs(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	if errors.Is(err, domain.ErrSweepInProgress) {
		log.Println("learning sweep: previous sweep still running, skipping")
		return nil
	}
	return err
}

// Sweep runs one pass over the queue. Only one sweep runs at a time; a
// concurrent call fails with ErrSweepInProgress. Cancelling ctx stops new
// items from starting while in-flight items finish.
func (s *LearningSweep) Sweep(ctx context.Context) (*SweepResult, error) {
	if !s.running.TryLock() {
		return nil, domain.ErrSweepInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	ctx, span := telemetry.StartTransaction(ctx, "LearningSweep.Sweep", telemetry.OpSweep)
	defer span.End()
	defer func() {
		metrics.Get().SweepDuration.Observe(time.Since(start).Seconds())
	}()

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to load workflow settings: %w", err)
	}
	if s.policy != nil {
		if err := s.policy.SetPolicy(settings.RateLimit); err != nil {
			log.Printf("learning sweep: keeping current rate policy: %v", err)
		}
	}

	result := &SweepResult{}
	if !settings.AutoLearnEnabled {
		result.Skipped = true
		log.Println("learning sweep: auto-learn disabled, skipping")
		return result, nil
	}

	reaped, err := s.queue.ReapStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to reap stale items: %w", err)
	}
	result.Reaped = reaped

	items, err := s.queue.Claim(ctx, s.cfg.BatchSize, s.cfg.StaleAfter)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to claim queue items: %w", err)
	}
	result.Claimed = len(items)
	if len(items) == 0 {
		return result, nil
	}

	log.Printf("learning sweep: processing %d queue items (concurrency %d)", len(items), s.cfg.Concurrency)

	run := &sweepRun{sweep: s, settings: settings, result: result}
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, item := range items {
		g.Go(func() error {
			run.process(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("learning sweep: %d completed, %d retried, %d failed, %d deferred, %d articles",
		result.Completed, result.Retried, result.Failed, result.Deferred, result.Articles)
	if result.Halted {
		span.SetStatus(sentry.SpanStatusResourceExhausted)
		telemetry.AddBreadcrumb(ctx, "learning", "sweep halted: "+result.HaltReason)
	}
	return result, nil
}

// sweepRun is the shared state of the items of one sweep
type sweepRun struct {
	sweep    *LearningSweep
	settings domain.WorkflowSettings
	halted   atomic.Bool

	mu     sync.Mutex
	result *SweepResult
}

func (r *sweepRun) process(ctx context.Context, item *domain.LearningQueueItem) {
	// Bookkeeping and in-flight work outlive a cancelled sweep.
	bg := context.WithoutCancel(ctx)

	if reason := r.stopReason(ctx); reason != "" {
		r.release(bg, item, reason)
		return
	}

	itemCtx, span := telemetry.StartSpan(bg, "LearningSweep.process", telemetry.SpanAttributes{
		TicketID:    item.TicketID,
		QueueItemID: item.ID,
		Operation:   "learn",
	})
	defer span.End()

	outcome, err := r.sweep.learner.LearnFromTicket(itemCtx, item.TicketID, r.settings)
	if err == nil {
		if err := r.sweep.queue.MarkCompleted(bg, item.ID); err != nil {
			r.bookkeepingFailed(bg, item, err)
			return
		}
		r.record(OutcomeCompleted, func(res *SweepResult) {
			res.Completed++
			res.Articles += len(outcome.Articles)
		})
		if outcome.SkipReason != "" {
			log.Printf("learning sweep: ticket %s: %s", item.TicketID, outcome.SkipReason)
		}
		return
	}
	span.SetError(err)

	// Denied calls spend no attempt; the item waits for the next sweep.
	if qe, ok := domain.AsQuotaDenied(err); ok {
		if qe.Limit.HaltsSweep() {
			r.halt(qe.Limit.Reason())
		}
		r.release(bg, item, err.Error())
		return
	}

	telemetry.CaptureErrorWithTags(itemCtx, err, map[string]string{
		"queue_item_id": item.ID,
		"ticket_id":     item.TicketID,
		"attempt":       fmt.Sprintf("%d", item.Attempts),
	})

	if !domain.IsRetryable(err) {
		if ferr := r.sweep.queue.FailPermanently(bg, item.ID, err.Error()); ferr != nil {
			r.bookkeepingFailed(bg, item, ferr)
			return
		}
		log.Printf("learning sweep: ticket %s failed permanently: %v", item.TicketID, err)
		r.record(OutcomeFailed, func(res *SweepResult) { res.Failed++ })
		return
	}

	status, ferr := r.sweep.queue.RecordFailure(bg, item.ID, err.Error())
	if ferr != nil {
		r.bookkeepingFailed(bg, item, ferr)
		return
	}
	if status == domain.LearningStatusFailed {
		log.Printf("learning sweep: ticket %s failed after %d attempts: %v", item.TicketID, item.Attempts, err)
		r.record(OutcomeFailed, func(res *SweepResult) { res.Failed++ })
		return
	}
	log.Printf("learning sweep: ticket %s attempt %d failed, will retry: %v", item.TicketID, item.Attempts, err)
	r.record(OutcomeRetried, func(res *SweepResult) { res.Retried++ })
}

// stopReason is non-empty once the sweep must not start more items
func (r *sweepRun) stopReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "sweep cancelled"
	}
	if r.halted.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
		return "sweep halted: " + r.result.HaltReason
	}
	return ""
}

func (r *sweepRun) halt(reason string) {
	r.mu.Lock()
	if !r.result.Halted {
		r.result.Halted = true
		r.result.HaltReason = reason
		log.Printf("learning sweep: halting, %s", reason)
	}
	r.mu.Unlock()
	r.halted.Store(true)
}

func (r *sweepRun) release(ctx context.Context, item *domain.LearningQueueItem, reason string) {
	if err := r.sweep.queue.Release(ctx, item.ID, reason); err != nil {
		r.bookkeepingFailed(ctx, item, err)
		return
	}
	r.record(OutcomeDeferred, func(res *SweepResult) { res.Deferred++ })
}

func (r *sweepRun) record(outcome string, update func(*SweepResult)) {
	metrics.Get().RecordQueueOutcome(outcome)
	r.mu.Lock()
	update(r.result)
	r.mu.Unlock()
}

// bookkeepingFailed leaves the item in processing; the stale reaper or the
// next claim picks it up again.
func (r *sweepRun) bookkeepingFailed(ctx context.Context, item *domain.LearningQueueItem, err error) {
	log.Printf("learning sweep: failed to update queue item %s: %v", item.ID, err)
	telemetry.CaptureErrorWithTags(ctx, err, map[string]string{
		"queue_item_id": item.ID,
		"ticket_id":     item.TicketID,
	})
}
