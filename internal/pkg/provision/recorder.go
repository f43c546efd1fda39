package provision

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/utils"
)

// RunRecorder persists the transitions of one run into a run repository.
type RunRecorder struct {
	repository agent.RunRepository
	runID      agent.RunID

	mu     sync.Mutex
	status agent.RunStatus
	err    error
}

var _ Observer = (*RunRecorder)(nil)

// NewRunRecorder creates the run record and returns an observer that keeps it current.
func NewRunRecorder(ctx context.Context, repository agent.RunRepository, input agent.RunInput) (*RunRecorder, error) {
	runID, err := repository.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	status, err := repository.GetStatus(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &RunRecorder{repository: repository, runID: runID, status: status}, nil
}

// RunID returns the identifier of the recorded run.
func (recorder *RunRecorder) RunID() agent.RunID {
	return recorder.runID
}

// Err returns the first error hit while persisting the run, if any.
func (recorder *RunRecorder) Err() error {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	return recorder.err
}

// Transition stores the new state. Persistence failures are logged and kept for Err.
func (recorder *RunRecorder) Transition(ctx context.Context, event Event) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	recorder.status.State = event.State
	recorder.status.UpdatedAt = event.At
	if event.Port != 0 {
		recorder.status.Port = event.Port
	}

	if event.State.IsFinished() {
		recorder.status.FinishedAt = utils.ToPointer(event.At)
		recorder.status.Elapsed = utils.Duration(event.Elapsed)
	}

	if event.State == agent.RunFailed {
		recorder.status.FailedStage = event.FailedStage
		if event.Err != nil {
			recorder.status.Error = utils.ToPointer(event.Err.Error())
		}
	}

	// The run must still be recorded when the caller's context was cancelled mid-run.
	if err := recorder.repository.UpdateStatus(context.WithoutCancel(ctx), recorder.runID, recorder.status); err != nil {
		slog.Warn("Cannot record run state.",
			slog.String("runId", string(recorder.runID)),
			slog.String("state", string(event.State)),
			slog.String("error", err.Error()),
		)
		if recorder.err == nil {
			recorder.err = err
		}
	}
}
