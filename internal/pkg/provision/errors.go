package provision

import (
	"fmt"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

// StageError reports the pipeline stage a provisioning run failed at.
type StageError struct {
	// Stage is the stage that failed.
	Stage agent.RunState

	// SellerID is the seller being provisioned.
	SellerID agent.SellerID

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message for the stage error.
func (err *StageError) Error() string {
	if err == nil {
		return ""
	}

	return fmt.Sprintf("provision %s: %s: %v", err.SellerID, err.Stage, err.Cause)
}

// Unwrap returns the underlying error.
func (err *StageError) Unwrap() error {
	if err == nil {
		return nil
	}

	return err.Cause
}
