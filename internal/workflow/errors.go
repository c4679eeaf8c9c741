package workflow

import "errors"

// Sentinel errors forming the failure taxonomy shared with the collaborator
// adapters. The workload gateway maps cluster API errors onto these; the
// orchestrator branches on them with errors.Is.
var (
	// ErrNotFound means the target workload does not exist. Terminal for
	// the request.
	ErrNotFound = errors.New("workload not found")

	// ErrConflict means the cluster object changed concurrently during a
	// patch. The orchestrator retries the apply once.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrUnavailable covers transport and auth failures talking to the
	// cluster. Terminal for the current attempt.
	ErrUnavailable = errors.New("cluster unavailable")

	// ErrUnknownRequest means no in-flight request exists for the given id
	// (never created, already terminal, or expired).
	ErrUnknownRequest = errors.New("unknown change request")

	// ErrInvalidTransition means the request is not in a state that permits
	// the attempted operation.
	ErrInvalidTransition = errors.New("invalid state transition")
)
