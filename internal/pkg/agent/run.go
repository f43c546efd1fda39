package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/utils"
)

// RunID identifies a single provisioning run in the store.
type RunID string

// RunState describes where a provisioning run is in the pipeline.
type RunState string

const (
	// RunFetching reads the seller profile from the registry.
	RunFetching RunState = "fetching"

	// RunAllocating selects the gateway port.
	RunAllocating RunState = "allocating"

	// RunRendering substitutes seller values into the templates.
	RunRendering RunState = "rendering"

	// RunMaterializing writes the agent workspace to disk.
	RunMaterializing RunState = "materializing"

	// RunRegistering declares and starts the managed service.
	RunRegistering RunState = "registering"

	// RunReporting publishes the agent status to the registry.
	RunReporting RunState = "reporting"

	// RunDone indicates the run finished successfully.
	RunDone RunState = "done"

	// RunFailed indicates the run stopped at a stage.
	RunFailed RunState = "failed"
)

// Stages lists the pipeline stages in execution order.
var Stages = []RunState{
	RunFetching,
	RunAllocating,
	RunRendering,
	RunMaterializing,
	RunRegistering,
	RunReporting,
}

// IsFinished reports whether the run state is terminal.
func (state RunState) IsFinished() bool {
	return state == RunDone || state == RunFailed
}

// RunInput captures what a provisioning run was asked to do.
type RunInput struct {
	SellerID SellerID `json:"sellerId"`

	// ServiceBackend is the service manager the run registers the agent with.
	ServiceBackend ServiceBackendKind `json:"serviceBackend"`

	// HostID is the server identifier reported to the registry.
	HostID string `json:"hostId"`
}

// RunStatus tracks lifecycle timestamps and state for a run.
type RunStatus struct {
	// CreatedAt is the timestamp when the run was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the timestamp of the most recent state change.
	UpdatedAt time.Time `json:"updatedAt"`

	// FinishedAt is the timestamp when the run reached Done or Failed.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// State is the current pipeline state.
	State RunState `json:"state"`

	// FailedStage names the stage the run failed at.
	FailedStage RunState `json:"failedStage,omitempty"`

	// Error carries the failure message when the run failed.
	Error *string `json:"error,omitempty"`

	// Port is the gateway port once allocated.
	Port int `json:"port,omitempty"`

	// Elapsed is the total run time once finished.
	Elapsed utils.Duration `json:"elapsed,omitempty"`
}

// RunRepository stores provisioning run records.
type RunRepository interface {
	// Create persists a new run and returns its identifier.
	// Returns ErrValidation when the seller identifier is invalid.
	Create(ctx context.Context, input RunInput) (RunID, error)

	// GetInput returns the stored input for the run.
	// Returns ErrRunNotFound when the run does not exist.
	GetInput(ctx context.Context, id RunID) (RunInput, error)

	// GetStatus returns the stored status for the run.
	// Returns ErrRunNotFound when the run does not exist.
	GetStatus(ctx context.Context, id RunID) (RunStatus, error)

	// UpdateStatus stores the status for the run.
	// Returns ErrRunNotFound when the run does not exist.
	UpdateStatus(ctx context.Context, id RunID, status RunStatus) error

	// List returns all run identifiers ordered by creation time, oldest first.
	List(ctx context.Context) ([]RunID, error)
}

// NewRunID generates a new run identifier.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// Validate checks whether the run identifier is non-empty and a valid UUID.
func (id RunID) Validate() error {
	if id == "" {
		return ErrRunIDInvalid
	}

	if _, err := uuid.Parse(string(id)); err != nil {
		return ErrRunIDInvalid
	}

	return nil
}

var (
	// EmptyRunID is a zero-value RunID.
	EmptyRunID RunID = ""

	// ErrRunNotFound indicates the run does not exist in the repository.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunIDInvalid indicates the run identifier is missing or malformed.
	ErrRunIDInvalid = errors.New("run id invalid")
)
