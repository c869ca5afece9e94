package purchaserequest

import "errors"

// Sentinel causes attached to the errorbank errors the engine returns, so
// callers can distinguish the 409-class failure modes with errors.Is while
// transports keep mapping by kind.
var (
	// ErrAlreadyFinalized means the request reached a terminal state and no
	// further decision is accepted.
	ErrAlreadyFinalized = errors.New("purchase request already finalized")
	// ErrStageMismatch means the caller named a stage other than the current
	// one, typically because it acted on a stale view.
	ErrStageMismatch = errors.New("purchase request is not at the requested stage")
	// ErrConcurrentModification means the decision lost an optimistic
	// concurrency race after internal retries were exhausted. The caller may
	// re-read and retry once.
	ErrConcurrentModification = errors.New("purchase request was modified concurrently")
)
