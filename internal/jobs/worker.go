package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor on a fixed interval and on demand
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	triggerChan  chan struct{}
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		triggerChan:  make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the worker's polling loop and blocks until it stops. A
// non-positive poll interval runs the processor on Trigger only.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	var tick <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Printf("%s worker started with poll interval: %v", w.name, w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s worker stopped: stop signal received", w.name)
			return
		case <-tick:
			w.run(ctx)
		case <-w.triggerChan:
			log.Printf("%s worker triggered on demand", w.name)
			w.run(ctx)
		}
	}
}

// Trigger requests a run outside the schedule. It never blocks; a trigger
// arriving while one is already pending is coalesced. Returns false when it
// was coalesced.
func (w *Worker) Trigger() bool {
	select {
	case w.triggerChan <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Printf("%s worker shutdown complete", w.name)
}

func (w *Worker) run(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("%s worker: error processing jobs: %v", w.name, err)
	}
}
