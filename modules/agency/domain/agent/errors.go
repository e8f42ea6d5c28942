package agent

import "errors"

var (
	// ErrCycle rejects a reparent that would make an agent its own ancestor.
	ErrCycle = errors.New("reparent would create a cycle")

	// ErrSelfReference rejects an agent being set as its own upline.
	ErrSelfReference = errors.New("agent cannot be its own upline")

	// ErrConcurrentModification signals that the subtree changed between the
	// descendant capture and the write. The caller retries with fresh data.
	ErrConcurrentModification = errors.New("hierarchy changed concurrently, retry with fresh data")

	// ErrSubtreeTooLarge refuses a cascading rewrite above the configured cap.
	ErrSubtreeTooLarge = errors.New("subtree exceeds the configured reparent cap")
)
