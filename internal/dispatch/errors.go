package dispatch

import "errors"

// The sentinel errors below implement spec §7's error taxonomy. None of
// them are retried at this layer: callers are expected to treat them as
// fatal (cmd/simcored's main is the only place that turns one into
// os.Exit), keeping with this codebase's convention of keeping os.Exit out of
// library code.
var (
	// ErrPrecondition covers out-of-range group/thread ids and buffers
	// whose length prefix is smaller than the prefix size itself.
	ErrPrecondition = errors.New("dispatch: precondition violation")
	// ErrOverflow is returned when a merged buffer would exceed the
	// group's fixed BlockSize, checked before any exchange (spec §9's
	// resolved "commented-out size check" open question).
	ErrOverflow = errors.New("dispatch: merged buffer exceeds block size")
	// ErrCollective wraps a failure from the underlying collective
	// transport (the MPI stand-in).
	ErrCollective = errors.New("dispatch: collective exchange failed")
)
