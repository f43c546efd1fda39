package agent

import "errors"

var (
	// ErrValidation indicates bad or missing input data. Not retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the registry has no record for the seller. Not retried.
	ErrNotFound = errors.New("seller not found")

	// ErrUpstream indicates a transient registry failure. Retrying the whole pipeline is safe.
	ErrUpstream = errors.New("upstream unavailable")

	// ErrExhausted indicates no free port exists in the allowed range.
	ErrExhausted = errors.New("port range exhausted")

	// ErrUnresolvedPlaceholder indicates a rendered template still contains a placeholder.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

	// ErrIO indicates a filesystem failure while materializing a workspace.
	ErrIO = errors.New("workspace io failed")

	// ErrRegistration indicates the host service manager rejected the service declaration.
	ErrRegistration = errors.New("service registration failed")

	// ErrStart indicates the declared service did not reach a running state in time.
	ErrStart = errors.New("service start failed")
)
