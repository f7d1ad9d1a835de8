package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockEffectivenessRecomputer is a mock implementation of EffectivenessRecomputer
type MockEffectivenessRecomputer struct {
	mock.Mock
}

func (m *MockEffectivenessRecomputer) RecomputeAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_Trigger tests an on-demand run well before the first tick
func TestWorker_Trigger(t *testing.T) {
	ran := make(chan struct{}, 4)
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Run(func(mock.Arguments) {
		ran <- struct{}{}
	}).Return(nil)

	worker := NewWorker("test", mockProcessor, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	assert.True(t, worker.Trigger())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered run did not happen")
	}

	worker.Stop()
	wg.Wait()
	mockProcessor.AssertNumberOfCalls(t, "ProcessJobs", 1)
}

// TestWorker_TriggerOnly tests that a zero interval never ticks but still triggers
func TestWorker_TriggerOnly(t *testing.T) {
	ran := make(chan struct{}, 4)
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Run(func(mock.Arguments) {
		ran <- struct{}{}
	}).Return(nil)

	worker := NewWorker("test", mockProcessor, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	mockProcessor.AssertNotCalled(t, "ProcessJobs", mock.Anything)

	worker.Trigger()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered run did not happen")
	}

	worker.Stop()
	mockProcessor.AssertNumberOfCalls(t, "ProcessJobs", 1)
}

// TestWorker_TriggerCoalesces tests that pending triggers do not pile up
func TestWorker_TriggerCoalesces(t *testing.T) {
	worker := NewWorker("test", new(MockJobProcessor), time.Hour)

	assert.True(t, worker.Trigger())
	assert.False(t, worker.Trigger())
}

// TestWorker_ProcessorErrorKeepsRunning tests that a failing run does not stop the loop
func TestWorker_ProcessorErrorKeepsRunning(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("boom"))

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(220 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	assert.GreaterOrEqual(t, len(mockProcessor.Calls), 2)
}

func TestEffectivenessRefresh_ProcessJobs(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		feedback := new(MockEffectivenessRecomputer)
		feedback.On("RecomputeAll", mock.Anything).Return(3, nil)

		err := NewEffectivenessRefresh(feedback).ProcessJobs(context.Background())

		assert.NoError(t, err)
		feedback.AssertExpectations(t)
	})

	t.Run("error is wrapped", func(t *testing.T) {
		feedback := new(MockEffectivenessRecomputer)
		feedback.On("RecomputeAll", mock.Anything).Return(0, errors.New("database error"))

		err := NewEffectivenessRefresh(feedback).ProcessJobs(context.Background())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to refresh article effectiveness")
	})
}
