package domain

import (
	"fmt"
	"time"
)

// MaxLearningAttempts is the attempt cap of a learning queue item
const MaxLearningAttempts = 3

// LearningStatus represents the status of a learning queue item
type LearningStatus string

const (
	LearningStatusPending    LearningStatus = "pending"
	LearningStatusProcessing LearningStatus = "processing"
	LearningStatusCompleted  LearningStatus = "completed"
	LearningStatusFailed     LearningStatus = "failed"
)

// LearningQueueItem tracks one resolved ticket through pattern extraction and
// article generation
type LearningQueueItem struct {
	ID          string
	TicketID    string
	Status      LearningStatus
	Attempts    int32
	LastError   string
	Deferred    bool // released by a quota denial; the next claim is not charged
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// NewLearningQueueItem creates a pending queue item for a ticket
func NewLearningQueueItem(id, ticketID string, createdAt time.Time) *LearningQueueItem {
	return &LearningQueueItem{
		ID:        id,
		TicketID:  ticketID,
		Status:    LearningStatusPending,
		Attempts:  0,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// ValidateLearningQueueItem validates a LearningQueueItem instance
func ValidateLearningQueueItem(item *LearningQueueItem) error {
	if item == nil {
		return fmt.Errorf("learning queue item cannot be nil")
	}

	if item.ID == "" {
		return fmt.Errorf("learning queue item ID is required")
	}

	if item.TicketID == "" {
		return fmt.Errorf("learning queue item TicketID is required")
	}

	if !IsValidLearningStatus(item.Status) {
		return fmt.Errorf("learning queue item Status is invalid: %s", item.Status)
	}

	if item.Attempts < 0 {
		return fmt.Errorf("learning queue item Attempts cannot be negative")
	}

	if item.Attempts > MaxLearningAttempts {
		return fmt.Errorf("learning queue item Attempts cannot exceed %d", MaxLearningAttempts)
	}

	if item.Status == LearningStatusFailed && item.Attempts < MaxLearningAttempts {
		return fmt.Errorf("learning queue item cannot be failed before its final attempt")
	}

	return nil
}

// IsValidLearningStatus checks if a LearningStatus is valid
func IsValidLearningStatus(s LearningStatus) bool {
	switch s {
	case LearningStatusPending, LearningStatusProcessing,
		LearningStatusCompleted, LearningStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the queue state machine allows from -> to.
// Completed and failed are terminal, and processing never re-enters itself.
func CanTransition(from, to LearningStatus) bool {
	switch from {
	case LearningStatusPending:
		return to == LearningStatusProcessing
	case LearningStatusProcessing:
		return to == LearningStatusPending || to == LearningStatusCompleted || to == LearningStatusFailed
	}
	return false
}

// StatusAfterFailure is the status of an item whose current attempt failed
func StatusAfterFailure(attempts int32) LearningStatus {
	if attempts >= MaxLearningAttempts {
		return LearningStatusFailed
	}
	return LearningStatusPending
}

// LearningQueueStats is the operator view of the queue
type LearningQueueStats struct {
	Pending        int64 `json:"pending"`
	Processing     int64 `json:"processing"`
	CompletedToday int64 `json:"completed_today"`
	Failed         int64 `json:"failed"`
}

// FailedLearningItem is a failed queue item with its latest error
type FailedLearningItem struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Attempts  int32     `json:"attempts"`
	LastError string    `json:"last_error"`
	UpdatedAt time.Time `json:"updated_at"`
}
