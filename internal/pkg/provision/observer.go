package provision

import (
	"context"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

// Event describes one state transition of a provisioning run.
type Event struct {
	SellerID agent.SellerID

	// State is the state being entered.
	State agent.RunState

	// Previous is the state being left, empty for the first stage.
	Previous agent.RunState

	// PreviousDuration is how long the previous state took.
	PreviousDuration time.Duration

	// FailedStage and Err are set when State is agent.RunFailed.
	FailedStage agent.RunState
	Err         error

	// Port is the gateway port once allocated.
	Port int

	// Elapsed is the time since the run started.
	Elapsed time.Duration

	At time.Time
}

// Observer is notified of every state transition. Observers must not block for long;
// their failures are their own concern and never affect the run.
type Observer interface {
	Transition(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (fn ObserverFunc) Transition(ctx context.Context, event Event) {
	fn(ctx, event)
}
