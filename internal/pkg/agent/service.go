package agent

import (
	"context"
	"time"
)

// ServiceName is the name a seller agent is declared under in the host service manager.
type ServiceName string

// ServiceNameFor derives the service name from the seller identifier. Re-provisioning the
// same seller always redefines the same service.
func ServiceNameFor(id SellerID) ServiceName {
	return ServiceName("agent-" + string(id))
}

// ServiceBackendKind selects the host service manager used to run agents.
type ServiceBackendKind string

const (
	ServiceBackendSystemd ServiceBackendKind = "systemd"
	ServiceBackendDocker  ServiceBackendKind = "docker"
)

// ServiceSpec is the declaration of one long-running agent service.
type ServiceSpec struct {
	// Name is the deterministic service name, see ServiceNameFor.
	Name ServiceName

	// Description is a human readable label shown by the service manager.
	Description string

	// Executable is the absolute path to the agent runtime binary.
	Executable string

	// Arguments are passed to the executable after its path.
	Arguments []string

	// WorkingDirectory is the agent root directory the process starts in.
	WorkingDirectory string

	// Environment holds the variables bound into the service.
	Environment map[string]string

	// RestartDelay is the fixed delay before the service manager restarts a crashed agent.
	RestartDelay time.Duration
}

// ServiceRegistrar declares and starts managed agent services on a host.
type ServiceRegistrar interface {
	// Register declares the service (replacing any previous declaration under the same
	// name) and starts or restarts it, waiting until it is running.
	// Returns ErrRegistration when the declaration is rejected.
	// Returns ErrStart when the service does not reach a running state in time.
	Register(ctx context.Context, spec ServiceSpec) error

	// Active reports whether the named service is currently running.
	Active(ctx context.Context, name ServiceName) (bool, error)
}
