package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
//
// A request produces one or more responses with the same request id. The last
// response of a request has Last set.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" cbor:"1,keyasint"`

	// General fields
	Key   []byte `json:"key,omitempty" cbor:"2,keyasint,omitempty"`   // all key based operations, stats name (response)
	Value []byte `json:"value,omitempty" cbor:"3,keyasint,omitempty"` // Store (request), Get (response), stats value (response)
	Flags uint32 `json:"flags,omitempty" cbor:"4,keyasint,omitempty"` // Store (request), Get (response)
	Cas   uint64 `json:"cas,omitempty" cbor:"5,keyasint,omitempty"`   // Store, Remove, Unlock, Endure

	// Request only fields
	Mode     uint8  `json:"mode,omitempty" cbor:"6,keyasint,omitempty"`      // Store
	Expiry   uint32 `json:"expiry,omitempty" cbor:"7,keyasint,omitempty"`    // Store, Touch, Counter
	LockTime uint32 `json:"lock_time,omitempty" cbor:"8,keyasint,omitempty"` // Get
	Replica  int32  `json:"replica,omitempty" cbor:"9,keyasint,omitempty"`   // GetReplica
	Delta    int64  `json:"delta,omitempty" cbor:"10,keyasint,omitempty"`    // Counter
	Initial  uint64 `json:"initial,omitempty" cbor:"11,keyasint,omitempty"`  // Counter
	Create   bool   `json:"create,omitempty" cbor:"12,keyasint,omitempty"`   // Counter
	Group    string `json:"group,omitempty" cbor:"13,keyasint,omitempty"`    // Stats

	// Durability (Endure requests)
	PersistTo   int32  `json:"persist_to,omitempty" cbor:"14,keyasint,omitempty"`
	ReplicateTo int32  `json:"replicate_to,omitempty" cbor:"15,keyasint,omitempty"`
	CapMax      bool   `json:"cap_max,omitempty" cbor:"16,keyasint,omitempty"`
	CheckDelete bool   `json:"check_delete,omitempty" cbor:"17,keyasint,omitempty"`
	TimeoutMs   uint64 `json:"timeout_ms,omitempty" cbor:"18,keyasint,omitempty"`
	IntervalMs  uint64 `json:"interval_ms,omitempty" cbor:"19,keyasint,omitempty"`

	// Response only fields
	Status     uint16 `json:"status,omitempty" cbor:"20,keyasint,omitempty"`
	Counter    uint64 `json:"counter,omitempty" cbor:"21,keyasint,omitempty"`     // Counter
	Final      bool   `json:"final,omitempty" cbor:"22,keyasint,omitempty"`       // Observe
	FromMaster bool   `json:"from_master,omitempty" cbor:"23,keyasint,omitempty"` // Observe
	KeyState   uint8  `json:"key_state,omitempty" cbor:"24,keyasint,omitempty"`   // Observe
	Server     string `json:"server,omitempty" cbor:"25,keyasint,omitempty"`      // Observe, Stats
	Last       bool   `json:"last,omitempty" cbor:"26,keyasint,omitempty"`        // last response of a request
	Err        string `json:"err,omitempty" cbor:"27,keyasint,omitempty"`         // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Conversion Functions
// --------------------------------------------------------------------------

// NewCommandRequest creates the request for an engine command.
func NewCommandRequest(cmd engine.Command) *Message {
	return &Message{
		MsgType:  MessageTypeOf(cmd.Kind),
		Key:      cmd.Key,
		Value:    cmd.Value,
		Flags:    cmd.Flags,
		Cas:      cmd.Cas,
		Mode:     uint8(cmd.Mode),
		Expiry:   cmd.Expiry,
		LockTime: cmd.LockTime,
		Replica:  int32(cmd.Replica),
		Delta:    cmd.Delta,
		Initial:  cmd.Initial,
		Create:   cmd.Create,
		Group:    cmd.Group,
	}
}

// Command converts a request into an engine command (without cookie).
func (m *Message) Command() engine.Command {
	return engine.Command{
		Kind:     m.MsgType.OpKind(),
		Key:      m.Key,
		Mode:     engine.StoreMode(m.Mode),
		Value:    m.Value,
		Flags:    m.Flags,
		Cas:      m.Cas,
		Expiry:   m.Expiry,
		LockTime: m.LockTime,
		Replica:  int(m.Replica),
		Delta:    m.Delta,
		Initial:  m.Initial,
		Create:   m.Create,
		Group:    m.Group,
	}
}

// NewEndureRequest creates the request for a durability check.
func NewEndureRequest(cmd engine.EndureCommand) *Message {
	return &Message{
		MsgType:     MsgTEndure,
		Key:         cmd.Key,
		Cas:         cmd.Cas,
		PersistTo:   int32(cmd.Options.PersistTo),
		ReplicateTo: int32(cmd.Options.ReplicateTo),
		CapMax:      cmd.Options.CapMax,
		CheckDelete: cmd.Options.CheckDelete,
		TimeoutMs:   uint64(cmd.Options.Timeout / time.Millisecond),
		IntervalMs:  uint64(cmd.Options.Interval / time.Millisecond),
	}
}

// EndureCommand converts an endure request into an engine endure command (without cookie).
func (m *Message) EndureCommand() engine.EndureCommand {
	return engine.EndureCommand{
		Key: m.Key,
		Cas: m.Cas,
		Options: engine.EndureOptions{
			PersistTo:   int(m.PersistTo),
			ReplicateTo: int(m.ReplicateTo),
			CapMax:      m.CapMax,
			CheckDelete: m.CheckDelete,
			Timeout:     time.Duration(m.TimeoutMs) * time.Millisecond,
			Interval:    time.Duration(m.IntervalMs) * time.Millisecond,
		},
	}
}

// NewEventResponse creates the response for an engine event.
func NewEventResponse(ev engine.Event, last bool) *Message {
	return &Message{
		MsgType:    MessageTypeOf(ev.Kind),
		Key:        ev.Key,
		Value:      ev.Value,
		Flags:      ev.Flags,
		Cas:        ev.Cas,
		Status:     uint16(ev.Status),
		Counter:    ev.Counter,
		Final:      ev.Final,
		FromMaster: ev.FromMaster,
		KeyState:   uint8(ev.KeyState),
		Server:     ev.Server,
		Last:       last,
	}
}

// Event converts a response into an engine event carrying cookie.
func (m *Message) Event(cookie any) engine.Event {
	return engine.Event{
		Kind:       m.MsgType.OpKind(),
		Cookie:     cookie,
		Status:     result.Status(m.Status),
		Key:        m.Key,
		Cas:        m.Cas,
		Value:      m.Value,
		Flags:      m.Flags,
		Counter:    m.Counter,
		Final:      m.Final,
		FromMaster: m.FromMaster,
		KeyState:   result.KeyState(m.KeyState),
		Server:     m.Server,
	}
}

// NewErrorResponse creates a new Error response. It is always the last response
// of a request.
func NewErrorResponse(status result.Status, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Status:  uint16(status),
		Err:     err,
		Last:    true,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTError:      "error",
	MsgTGet:        "get",
	MsgTGetReplica: "get_replica",
	MsgTCounter:    "counter",
	MsgTStore:      "store",
	MsgTRemove:     "remove",
	MsgTTouch:      "touch",
	MsgTUnlock:     "unlock",
	MsgTEndure:     "endure",
	MsgTObserve:    "observe",
	MsgTStats:      "stats",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MessageTypeOf returns the message type of an operation kind.
func MessageTypeOf(kind engine.OpKind) MessageType {
	switch kind {
	case engine.OpGet:
		return MsgTGet
	case engine.OpGetReplica:
		return MsgTGetReplica
	case engine.OpCounter:
		return MsgTCounter
	case engine.OpStore:
		return MsgTStore
	case engine.OpRemove:
		return MsgTRemove
	case engine.OpTouch:
		return MsgTTouch
	case engine.OpUnlock:
		return MsgTUnlock
	case engine.OpEndure:
		return MsgTEndure
	case engine.OpObserve:
		return MsgTObserve
	case engine.OpStats:
		return MsgTStats
	default:
		return MsgTUnknown
	}
}

// OpKind returns the operation kind of a message type (engine.OpInvalid for
// MsgTUnknown and MsgTError).
func (t MessageType) OpKind() engine.OpKind {
	switch t {
	case MsgTGet:
		return engine.OpGet
	case MsgTGetReplica:
		return engine.OpGetReplica
	case MsgTCounter:
		return engine.OpCounter
	case MsgTStore:
		return engine.OpStore
	case MsgTRemove:
		return engine.OpRemove
	case MsgTTouch:
		return engine.OpTouch
	case MsgTUnlock:
		return engine.OpUnlock
	case MsgTEndure:
		return engine.OpEndure
	case MsgTObserve:
		return engine.OpObserve
	case MsgTStats:
		return engine.OpStats
	default:
		return engine.OpInvalid
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "unknown" {
		*t = MsgTUnknown
		return nil
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTError               // Indicates the request could not be executed

	// Bucket operations

	MsgTGet        // Get a value (optionally locking the key)
	MsgTGetReplica // Get a value from a replica
	MsgTCounter    // Increment or decrement a counter
	MsgTStore      // Set, add, replace, append or prepend
	MsgTRemove     // Delete a key
	MsgTTouch      // Update the expiry of a key
	MsgTUnlock     // Release a lock
	MsgTEndure     // Wait until a mutation is durable
	MsgTObserve    // Report the state of a key on every node
	MsgTStats      // Report statistics
)
