package agent

import "context"

// AgentStatus is the agent state published to the central registry.
type AgentStatus string

const (
	AgentStatusActive AgentStatus = "active"
)

// StatusReport is the body of the registry status update.
type StatusReport struct {
	AgentStatus   AgentStatus `json:"agentStatus"`
	AgentPort     int         `json:"agentPort"`
	AgentServerID string      `json:"agentServerId"`
}

// Registry is the platform registry holding seller records and agent status.
type Registry interface {
	// GetSeller reads the seller profile.
	// Returns ErrNotFound when the registry has no record for the seller.
	// Returns ErrUpstream when the registry is unreachable or the payload is malformed.
	// Returns ErrValidation when required identity fields are missing.
	GetSeller(ctx context.Context, id SellerID) (SellerProfile, error)

	// ReportStatus publishes the agent status for the seller. It is sent once and not retried.
	// Returns ErrUpstream when the update could not be delivered.
	ReportStatus(ctx context.Context, id SellerID, report StatusReport) error
}
