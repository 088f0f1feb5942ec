package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dCB/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	1 byte MsgType | 4 bytes presence flags | present fields in bit order
//
// Integers are big endian, byte slices and strings are prefixed with a 4 byte
// length. Boolean fields have no payload, the presence bit is the value.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey uint32 = 1 << iota
	hasValue
	hasFlags
	hasCas
	hasMode
	hasExpiry
	hasLockTime
	hasReplica
	hasDelta
	hasInitial
	hasCreate
	hasGroup
	hasPersistTo
	hasReplicateTo
	hasCapMax
	hasCheckDelete
	hasTimeoutMs
	hasIntervalMs
	hasStatus
	hasCounter
	hasFinal
	hasFromMaster
	hasKeyState
	hasServer
	hasLast
	hasErr
)

const binaryHeaderSize = 5

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	w := binaryWriter{buf: make([]byte, binaryHeaderSize, binaryHeaderSize+64+len(msg.Key)+len(msg.Value))}

	w.bytes(hasKey, msg.Key)
	w.bytes(hasValue, msg.Value)
	w.u32(hasFlags, msg.Flags)
	w.u64(hasCas, msg.Cas)
	w.u8(hasMode, msg.Mode)
	w.u32(hasExpiry, msg.Expiry)
	w.u32(hasLockTime, msg.LockTime)
	w.u32(hasReplica, uint32(msg.Replica))
	w.u64(hasDelta, uint64(msg.Delta))
	w.u64(hasInitial, msg.Initial)
	w.flag(hasCreate, msg.Create)
	w.str(hasGroup, msg.Group)
	w.u32(hasPersistTo, uint32(msg.PersistTo))
	w.u32(hasReplicateTo, uint32(msg.ReplicateTo))
	w.flag(hasCapMax, msg.CapMax)
	w.flag(hasCheckDelete, msg.CheckDelete)
	w.u64(hasTimeoutMs, msg.TimeoutMs)
	w.u64(hasIntervalMs, msg.IntervalMs)
	w.u16(hasStatus, msg.Status)
	w.u64(hasCounter, msg.Counter)
	w.flag(hasFinal, msg.Final)
	w.flag(hasFromMaster, msg.FromMaster)
	w.u8(hasKeyState, msg.KeyState)
	w.str(hasServer, msg.Server)
	w.flag(hasLast, msg.Last)
	w.str(hasErr, msg.Err)

	w.buf[0] = byte(msg.MsgType)
	binary.BigEndian.PutUint32(w.buf[1:binaryHeaderSize], w.flags)
	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < binaryHeaderSize {
		return fmt.Errorf("data too short for message header")
	}

	r := binaryReader{
		data:  data,
		pos:   binaryHeaderSize,
		flags: binary.BigEndian.Uint32(data[1:binaryHeaderSize]),
	}

	*msg = common.Message{
		MsgType:     common.MessageType(data[0]),
		Key:         r.bytes(hasKey, "key"),
		Value:       r.bytes(hasValue, "value"),
		Flags:       r.u32(hasFlags, "flags"),
		Cas:         r.u64(hasCas, "cas"),
		Mode:        r.u8(hasMode, "mode"),
		Expiry:      r.u32(hasExpiry, "expiry"),
		LockTime:    r.u32(hasLockTime, "lock time"),
		Replica:     int32(r.u32(hasReplica, "replica")),
		Delta:       int64(r.u64(hasDelta, "delta")),
		Initial:     r.u64(hasInitial, "initial"),
		Create:      r.flag(hasCreate),
		Group:       r.str(hasGroup, "group"),
		PersistTo:   int32(r.u32(hasPersistTo, "persist to")),
		ReplicateTo: int32(r.u32(hasReplicateTo, "replicate to")),
		CapMax:      r.flag(hasCapMax),
		CheckDelete: r.flag(hasCheckDelete),
		TimeoutMs:   r.u64(hasTimeoutMs, "timeout"),
		IntervalMs:  r.u64(hasIntervalMs, "interval"),
		Status:      r.u16(hasStatus, "status"),
		Counter:     r.u64(hasCounter, "counter"),
		Final:       r.flag(hasFinal),
		FromMaster:  r.flag(hasFromMaster),
		KeyState:    r.u8(hasKeyState, "key state"),
		Server:      r.str(hasServer, "server"),
		Last:        r.flag(hasLast),
		Err:         r.str(hasErr, "error"),
	}
	return r.err
}

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type binaryWriter struct {
	buf   []byte
	flags uint32
}

func (w *binaryWriter) bytes(bit uint32, b []byte) {
	if b == nil {
		return
	}
	w.flags |= bit
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *binaryWriter) str(bit uint32, s string) {
	if s == "" {
		return
	}
	w.flags |= bit
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *binaryWriter) u8(bit uint32, v uint8) {
	if v != 0 {
		w.flags |= bit
		w.buf = append(w.buf, v)
	}
}

func (w *binaryWriter) u16(bit uint32, v uint16) {
	if v != 0 {
		w.flags |= bit
		w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	}
}

func (w *binaryWriter) u32(bit uint32, v uint32) {
	if v != 0 {
		w.flags |= bit
		w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	}
}

func (w *binaryWriter) u64(bit uint32, v uint64) {
	if v != 0 {
		w.flags |= bit
		w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	}
}

func (w *binaryWriter) flag(bit uint32, v bool) {
	if v {
		w.flags |= bit
	}
}

// binaryReader reads the fields announced by flags. After the first error every
// read returns the zero value and err keeps the first error.
type binaryReader struct {
	data  []byte
	pos   int
	flags uint32
	err   error
}

func (r *binaryReader) take(bit uint32, n int, what string) []byte {
	if r.err != nil || r.flags&bit == 0 {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", what)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// bytes copies the field, the result never aliases the input buffer.
func (r *binaryReader) bytes(bit uint32, what string) []byte {
	l := r.take(bit, 4, what+" length")
	if l == nil {
		return nil
	}
	b := r.take(bit, int(binary.BigEndian.Uint32(l)), what+" data")
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *binaryReader) str(bit uint32, what string) string {
	l := r.take(bit, 4, what+" length")
	if l == nil {
		return ""
	}
	return string(r.take(bit, int(binary.BigEndian.Uint32(l)), what+" data"))
}

func (r *binaryReader) u8(bit uint32, what string) uint8 {
	if b := r.take(bit, 1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *binaryReader) u16(bit uint32, what string) uint16 {
	if b := r.take(bit, 2, what); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *binaryReader) u32(bit uint32, what string) uint32 {
	if b := r.take(bit, 4, what); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *binaryReader) u64(bit uint32, what string) uint64 {
	if b := r.take(bit, 8, what); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *binaryReader) flag(bit uint32) bool {
	return r.flags&bit != 0
}
