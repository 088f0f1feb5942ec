package result

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Status Codes
// --------------------------------------------------------------------------

// Status is the outcome code of a single key operation as reported by the engine.
type Status uint16

const (
	StatusSuccess            Status = iota // 0: Operation executed successfully.
	StatusKeyNotFound                      // 1: The key does not exist.
	StatusKeyExists                        // 2: The key exists or the CAS did not match.
	StatusTooBig                           // 3: The value exceeds the size limit.
	StatusInvalidArgs                      // 4: The command was malformed.
	StatusNotStored                        // 5: The item was not stored (append/prepend on a missing key).
	StatusDeltaBadValue                    // 6: Counter operation on a non-numeric value.
	StatusTempFail                         // 7: Temporary failure, the caller may retry.
	StatusLocked                           // 8: The key is locked by another operation.
	StatusTimeout                          // 9: The operation (or its durability check) timed out.
	StatusNetworkError                     // 10: The connection failed while the operation was in flight.
	StatusDurabilityTooMany                // 11: Durability requirements exceed the cluster topology.
	StatusNoMatchingServer                 // 12: No server is available for the key.
	StatusInternalError                    // 13: Internal error in the client or the server.
	StatusUnknownCommand                   // 14: The server does not know the command.
)

// String returns the symbolic name of a Status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusKeyNotFound:
		return "KeyNotFound"
	case StatusKeyExists:
		return "KeyExists"
	case StatusTooBig:
		return "TooBig"
	case StatusInvalidArgs:
		return "InvalidArgs"
	case StatusNotStored:
		return "NotStored"
	case StatusDeltaBadValue:
		return "DeltaBadValue"
	case StatusTempFail:
		return "TempFail"
	case StatusLocked:
		return "Locked"
	case StatusTimeout:
		return "Timeout"
	case StatusNetworkError:
		return "NetworkError"
	case StatusDurabilityTooMany:
		return "DurabilityTooMany"
	case StatusNoMatchingServer:
		return "NoMatchingServer"
	case StatusInternalError:
		return "InternalError"
	case StatusUnknownCommand:
		return "UnknownCommand"
	default:
		return fmt.Sprintf("Status(%d)", uint16(s))
	}
}

// Description returns a human readable description of the status
func (s Status) Description() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusKeyNotFound:
		return "the key does not exist on the server"
	case StatusKeyExists:
		return "the key already exists or the CAS did not match"
	case StatusTooBig:
		return "the value was too large"
	case StatusInvalidArgs:
		return "invalid arguments"
	case StatusNotStored:
		return "the item was not stored"
	case StatusDeltaBadValue:
		return "the existing value is not a number"
	case StatusTempFail:
		return "temporary failure, try again later"
	case StatusLocked:
		return "the key is locked"
	case StatusTimeout:
		return "the operation timed out"
	case StatusNetworkError:
		return "network error"
	case StatusDurabilityTooMany:
		return "durability requirements exceed the number of nodes"
	case StatusNoMatchingServer:
		return "no server available for the key"
	case StatusInternalError:
		return "internal error"
	case StatusUnknownCommand:
		return "unknown command"
	default:
		return "unknown status"
	}
}

// Success reports whether the status denotes a successful operation.
func (s Status) Success() bool {
	return s == StatusSuccess
}

// Temporary reports whether the caller may retry the operation later.
func (s Status) Temporary() bool {
	return s == StatusTempFail || s == StatusTimeout || s == StatusNetworkError || s == StatusLocked
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a Status and an optional message.
// It is returned for failed key operations and for engine scheduling failures.
type Error struct {
	Status Status // The status code
	Key    string // The key (may be empty)
	Msg    string // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Status.Description()
	}
	if e.Key != "" {
		return fmt.Sprintf("dcb error (%s) for key %q: %s", e.Status, e.Key, msg)
	}
	return fmt.Sprintf("dcb error (%s): %s", e.Status, msg)
}

// NewError creates a new Error with the given status and message.
func NewError(status Status, msg string) *Error {
	return &Error{
		Status: status,
		Msg:    msg,
	}
}

// StatusOf extracts the Status from an error.
// nil maps to StatusSuccess, errors not carrying a status map to StatusInternalError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusInternalError
}
