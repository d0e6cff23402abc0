package cadence

import "github.com/pkg/errors"

// Error taxonomy of the timing core. ErrResourceExhausted and ErrTimeout are
// recoverable and reported to the immediate caller. ErrConnectionAborted tears
// the connection down. ErrInvalidConfiguration is fatal to startup.
var (
	ErrResourceExhausted    = errors.New("resource exhausted")
	ErrTimeout              = errors.New("timeout")
	ErrConnectionAborted    = errors.New("connection aborted")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
