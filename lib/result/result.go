package result

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Result Kinds
// --------------------------------------------------------------------------

// Kind selects which fields of a Result are populated by the dispatcher.
type Kind uint8

const (
	KindBase      Kind = iota // status, key and cas only (stats errors)
	KindValue                 // value-bearing result (get, counter, observe)
	KindOperation             // mutation result (store, remove, touch, unlock, endure)
	KindItem                  // user supplied item, may carry extra fields
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindBase:
		return "Result"
	case KindValue:
		return "ValueResult"
	case KindOperation:
		return "OperationResult"
	case KindItem:
		return "Item"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Result
// --------------------------------------------------------------------------

// Result holds the outcome of a single key operation.
//
// The key is set once when the result is created and cannot be changed afterwards.
// Cas is only meaningful if the operation succeeded or reached a durability relevant
// state. Value holds the decoded payload for get operations, the counter value for
// counter operations and a []ObserveInfo for observe operations.
type Result struct {
	Kind   Kind
	Status Status
	Cas    uint64
	Value  any
	Flags  uint32

	// Fields holds user defined attributes of an Item. It is nil for all other kinds.
	Fields map[string]any

	key string
}

// New creates a new result of the given kind for a key.
func New(kind Kind, key string) *Result {
	r := &Result{
		Kind: kind,
		key:  key,
	}
	if kind == KindItem {
		r.Fields = make(map[string]any)
	}
	return r
}

// NewItem creates a user supplied item. For store operations the value of the
// item is read, for retrieval operations it is replaced with the fetched value.
func NewItem(key string, value any) *Result {
	r := New(KindItem, key)
	r.Value = value
	return r
}

// Key returns the key of the result.
func (r *Result) Key() string {
	return r.key
}

// Success reports whether the operation succeeded.
func (r *Result) Success() bool {
	return r.Status.Success()
}

// ErrString returns a textual representation of the status.
func (r *Result) ErrString() string {
	return r.Status.Description()
}

// Err returns nil on success and an *Error describing the failure otherwise.
func (r *Result) Err() error {
	if r.Status.Success() {
		return nil
	}
	return &Error{Status: r.Status, Key: r.key}
}

// ObserveInfo returns the observe reports collected for the key.
// It returns nil if the result does not belong to an observe operation.
func (r *Result) ObserveInfo() []ObserveInfo {
	infos, _ := r.Value.([]ObserveInfo)
	return infos
}

// String returns a short representation of the result.
func (r *Result) String() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	sb.WriteString(fmt.Sprintf("<rc=0x%X, key=%q", uint16(r.Status), r.key))
	if r.Status.Success() {
		sb.WriteString(fmt.Sprintf(", cas=0x%X", r.Cas))
	} else {
		sb.WriteString(fmt.Sprintf(", err=%s", r.Status))
	}
	if r.Value != nil {
		sb.WriteString(fmt.Sprintf(", value=%v", r.Value))
	}
	if r.Flags != 0 {
		sb.WriteString(fmt.Sprintf(", flags=0x%X", r.Flags))
	}
	sb.WriteString(">")
	return sb.String()
}

// --------------------------------------------------------------------------
// Observe Info
// --------------------------------------------------------------------------

// KeyState is the state of a key on a single node as reported by observe.
type KeyState uint8

const (
	KeyStateFound            KeyState = 0x00 // in memory, not yet persisted
	KeyStatePersisted        KeyState = 0x01 // in memory and persisted to disk
	KeyStateNotFound         KeyState = 0x80 // not present on the node
	KeyStateLogicallyDeleted KeyState = 0x81 // deleted, the deletion is not yet persisted
)

// String returns the string representation of a KeyState.
func (s KeyState) String() string {
	switch s {
	case KeyStateFound:
		return "found"
	case KeyStatePersisted:
		return "persisted"
	case KeyStateNotFound:
		return "not-found"
	case KeyStateLogicallyDeleted:
		return "logically-deleted"
	default:
		return fmt.Sprintf("keystate(0x%X)", uint8(s))
	}
}

// ObserveInfo is one node's report for an observed key.
type ObserveInfo struct {
	FromMaster bool
	State      KeyState
	Cas        uint64
}

// String returns a short representation of the observe info.
func (o ObserveInfo) String() string {
	return fmt.Sprintf("ObserveInfo<master=%t, state=%s, cas=0x%X>", o.FromMaster, o.State, o.Cas)
}
