package matte

import (
	"errors"
	"fmt"
)

// Configuration errors. All of them match ErrConfig with errors.Is.
var (
	ErrConfig            = errors.New("matte: invalid configuration")
	ErrInvalidLevels     = fmt.Errorf("%w: levels must be at least 1", ErrConfig)
	ErrNoLayers          = fmt.Errorf("%w: no active layers", ErrConfig)
	ErrInvalidDimensions = fmt.Errorf("%w: width and height must be positive", ErrConfig)
	ErrUnknownLayer      = fmt.Errorf("%w: unknown layer", ErrConfig)
	ErrInvalidWorkers    = fmt.Errorf("%w: workers must not be negative", ErrConfig)
	ErrDuplicatePassName = fmt.Errorf("%w: duplicate pass name", ErrConfig)
)

// Misuse errors. They are always returned inside a *MisuseError, which
// matches both ErrMisuse and the specific sentinel.
var (
	ErrMisuse           = errors.New("matte: misuse")
	ErrNotAllocated     = errors.New("matte: buffer not allocated")
	ErrAlreadyAllocated = errors.New("matte: buffer already allocated")
	ErrAlreadyFinalized = errors.New("matte: already finalized")
	ErrNotFinalized     = errors.New("matte: not finalized")
	ErrAlreadyExtracted = errors.New("matte: layer already extracted")
	ErrInactiveLayer    = errors.New("matte: layer not active")
	ErrFrameSize        = errors.New("matte: hash frame has wrong length")
	ErrFreed            = errors.New("matte: session freed")
)

// Pass and checkpoint errors.
var (
	ErrInvalidPasses     = errors.New("matte: invalid passes")
	ErrInvalidCheckpoint = errors.New("matte: invalid checkpoint")
)

// MisuseError reports an operation called in a state that does not allow it.
type MisuseError struct {
	Op    string
	State State
	Err   error
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("%v (%s in state %s)", e.Err, e.Op, e.State)
}

// Unwrap returns ErrMisuse and the specific cause.
func (e *MisuseError) Unwrap() []error {
	return []error{ErrMisuse, e.Err}
}
