package schemas

import "errors"

// Error taxonomy. Components wrap these sentinels with fmt.Errorf("%w")
// so callers can classify with errors.Is without depending on concrete
// component types.
var (
	// ErrConfiguration is fatal: it aborts the whole run before any sandbox
	// is touched.
	ErrConfiguration = errors.New("configuration error")

	// ErrSandboxCreation means the underlying store was dirty, locked, or
	// unreachable. Non-retryable for the candidate.
	ErrSandboxCreation = errors.New("sandbox creation failed")

	// ErrInvalidChangeSet means the candidate's change set is malformed.
	// Non-retryable.
	ErrInvalidChangeSet = errors.New("invalid change set")

	// ErrApplyConflict means a change descriptor's path pre-condition was
	// violated (add target exists, modify/delete target missing).
	// Non-retryable.
	ErrApplyConflict = errors.New("change set conflicts with sandbox state")

	// ErrValidationCrashed means the validation process itself died. The
	// runner retries once with reduced scope before surfacing this.
	ErrValidationCrashed = errors.New("validation process crashed")

	// ErrTransientInfrastructure covers network and resource contention
	// failures, retryable with backoff up to a capped attempt count.
	ErrTransientInfrastructure = errors.New("transient infrastructure failure")

	// ErrResourceExhausted means a shared limit (sandbox slots, disk) was
	// hit. The candidate is requeued without consuming its retry budget.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrAuditPersistence marks a durable-sink write failure. It is logged
	// and counted, never propagated to the recording caller.
	ErrAuditPersistence = errors.New("audit persistence failure")
)
