package dispatch

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dCB/lib/engine"
)

var (
	// ErrForeignBatch is recorded when an event carries a batch owned by another dispatcher.
	ErrForeignBatch = errors.New("batch is owned by another dispatcher")
	// ErrUnknownOp is recorded when an event carries an operation kind without a handler.
	ErrUnknownOp = errors.New("no handler for operation")
)

// FatalError is recorded on a batch when a completion cannot be processed.
// Fatal errors are reported through MultiResult.Exceptions, not as a per-key status.
type FatalError struct {
	Op  engine.OpKind
	Key string
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}
