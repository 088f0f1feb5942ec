// Package serializer converts rpc messages (common.Message) to bytes and back.
//
// Implementations:
//
//   - binary: custom format with a presence bitmap, only set fields are written.
//     Fastest and smallest, the default.
//   - cbor: CBOR with integer map keys, compact and self describing.
//   - json: human-readable, useful for debugging.
//   - gob: Go's gob format, sends the type description with every message.
//
// Thread Safety:
//
//	All serializers are stateless (or hold immutable encoder modes) and safe for
//	concurrent use.
//
// Usage:
//
//	s, _ := serializer.New("binary")
//	data, err := s.Serialize(msg)
//	// ... send data ...
//	var received common.Message
//	err = s.Deserialize(data, &received)
package serializer
