package ieti

import "errors"

// Setup failures. Every failure is a violated precondition of the one-shot
// setup sequence; callers are expected to abort rather than retry.
var (
	// ErrNotInitialized is returned when an operation runs before Init.
	ErrNotInitialized = errors.New("ieti: mapper not initialized")

	// ErrAlreadyCompleted is returned when a phase-gated operation is
	// invoked a second time on the same instance.
	ErrAlreadyCompleted = errors.New("ieti: phase already completed")

	// ErrShapeMismatch is returned on array-length or dimension mismatches
	// between supplied data and the expected sizes.
	ErrShapeMismatch = errors.New("ieti: shape mismatch")

	// ErrDimensionOutOfRange is returned when a component dimension lies
	// outside [1, ambient dimension].
	ErrDimensionOutOfRange = errors.New("ieti: dimension out of range")

	// ErrInternalConsistency is returned when an internal cross-check
	// fails, e.g. a coupled dof with a single occurrence or a multiplier
	// count that does not match the precomputed expectation.
	ErrInternalConsistency = errors.New("ieti: internal consistency check failed")
)
