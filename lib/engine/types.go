package engine

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dCB/lib/result"
)

// --------------------------------------------------------------------------
// Operation Kinds
// --------------------------------------------------------------------------

// OpKind identifies the kind of a command and of the events it produces.
type OpKind uint8

const (
	OpInvalid    OpKind = iota // zero value, never scheduled
	OpGet                      // fetch a value (optionally locking the key)
	OpGetReplica               // fetch a value from a replica node
	OpCounter                  // increment or decrement a numeric value
	OpStore                    // set / add / replace / append / prepend
	OpRemove                   // delete a key
	OpTouch                    // update the expiry of a key
	OpUnlock                   // release a lock taken by a locking get
	OpEndure                   // wait until a mutation is persisted/replicated
	OpObserve                  // report the state of a key on every node
	OpStats                    // report server statistics
)

// String returns the name of the OpKind.
func (k OpKind) String() string {
	switch k {
	case OpGet:
		return "get"
	case OpGetReplica:
		return "get-replica"
	case OpCounter:
		return "counter"
	case OpStore:
		return "store"
	case OpRemove:
		return "remove"
	case OpTouch:
		return "touch"
	case OpUnlock:
		return "unlock"
	case OpEndure:
		return "endure"
	case OpObserve:
		return "observe"
	case OpStats:
		return "stats"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// StoreMode selects the semantics of an OpStore command.
type StoreMode uint8

const (
	StoreSet     StoreMode = iota // unconditional write
	StoreAdd                      // write only if the key does not exist
	StoreReplace                  // write only if the key exists
	StoreAppend                   // append raw bytes to an existing value
	StorePrepend                  // prepend raw bytes to an existing value
)

// String returns the name of the StoreMode.
func (m StoreMode) String() string {
	switch m {
	case StoreSet:
		return "set"
	case StoreAdd:
		return "add"
	case StoreReplace:
		return "replace"
	case StoreAppend:
		return "append"
	case StorePrepend:
		return "prepend"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseStoreMode parses the output of StoreMode.String.
func ParseStoreMode(s string) (StoreMode, error) {
	for m := StoreSet; m <= StorePrepend; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown store mode %q", s)
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Command is one sub-operation handed to an engine.
//
// Cookie is opaque to the engine: it is copied into every event the command
// produces and never leaves the process.
type Command struct {
	Kind   OpKind
	Cookie any
	Key    []byte

	// store
	Mode  StoreMode
	Value []byte
	Flags uint32

	// optimistic locking (store, remove, unlock)
	Cas uint64

	// expiry in seconds (store, touch, counter with create, get-and-touch)
	Expiry uint32

	// get: lock the key for LockTime seconds
	LockTime uint32

	// get-replica: replica index, -1 for the first replica that answers
	Replica int

	// counter
	Delta   int64
	Initial uint64
	Create  bool

	// stats group ("" for the default group)
	Group string
}

// EndureOptions controls a durability check.
type EndureOptions struct {
	PersistTo   int
	ReplicateTo int
	// CapMax caps the targets to the number of available nodes instead of failing.
	CapMax bool
	// CheckDelete waits for the key to be removed instead of stored.
	CheckDelete bool
	Timeout     time.Duration
	Interval    time.Duration
}

// EndureCommand asks the engine to confirm that a mutation reached the requested
// number of nodes.
type EndureCommand struct {
	Cookie  any
	Key     []byte
	Cas     uint64
	Options EndureOptions
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// Event is one completion delivered by an engine.
//
// Most commands produce exactly one event. Observe produces one event per node
// followed by an event with Final set. Stats produces one event per stat and node
// followed by an event with an empty Server.
type Event struct {
	Kind   OpKind
	Cookie any
	Status result.Status
	Key    []byte
	Cas    uint64

	// get / get-replica: the raw value and its flags
	// stats: the stat value
	Value []byte
	Flags uint32

	// counter: the new value
	Counter uint64

	// observe
	Final      bool
	FromMaster bool
	KeyState   result.KeyState

	// stats: reporting node
	Server string
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Handler processes engine events.
type Handler interface {
	Handle(ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev Event)

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev Event) { f(ev) }

// Engine executes commands and reports their completion as events.
//
// Events are delivered serially to the handler. Every scheduled command
// completes eventually: failures after scheduling (network errors, timeouts) are
// delivered as events carrying the failure status.
type Engine interface {
	// SetHandler installs the event handler. It must be called before scheduling.
	SetHandler(h Handler)
	// Schedule schedules all commands or none of them.
	Schedule(cmds ...Command) error
	// Endure schedules a durability check. The result is delivered as an OpEndure event.
	Endure(cmd EndureCommand) error
	// Close shuts the engine down.
	Close() error
}
