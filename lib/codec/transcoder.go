package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// MaxKeyLength is the longest key (in bytes) the transcoder accepts.
const MaxKeyLength = 250

// Transcoder converts keys and values between their application and wire form.
type Transcoder interface {
	// EncodeKey converts an application key into its wire form.
	EncodeKey(key string) ([]byte, error)
	// DecodeKey converts a wire key back into an application key.
	DecodeKey(raw []byte) (string, error)
	// EncodeValue encodes v with the requested format and returns the payload
	// together with the flags that have to be stored alongside it.
	EncodeValue(v any, format uint32) ([]byte, uint32, error)
	// DecodeValue decodes a payload according to its stored flags.
	DecodeValue(raw []byte, flags uint32) (any, error)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// DecodeError is returned when a key or value cannot be converted.
type DecodeError struct {
	What  string // "key" or "value"
	Flags uint32
	Err   error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.What == "value" {
		return fmt.Sprintf("cannot decode value (%s): %v", FormatName(e.Flags), e.Err)
	}
	return fmt.Sprintf("cannot decode %s: %v", e.What, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------
// Default Transcoder
// --------------------------------------------------------------------------

// Default is the standard transcoder. Keys are UTF-8 strings, values are encoded
// as JSON, CBOR, raw bytes or UTF-8 text and may be zstd compressed.
type Default struct {
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
	zenc    *zstd.Encoder
	zdec    *zstd.Decoder
}

// NewDefault creates the default transcoder.
func NewDefault() (*Default, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create cbor decoder: %w", err)
	}
	zenc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	zdec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Default{cborEnc: em, cborDec: dm, zenc: zenc, zdec: zdec}, nil
}

// MustDefault is like NewDefault but panics on error.
func MustDefault() *Default {
	t, err := NewDefault()
	if err != nil {
		panic(err)
	}
	return t
}

// EncodeKey implements Transcoder.
func (t *Default) EncodeKey(key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}
	if len(key) > MaxKeyLength {
		return nil, fmt.Errorf("key exceeds %d bytes", MaxKeyLength)
	}
	if !utf8.ValidString(key) {
		return nil, fmt.Errorf("key is not valid utf-8")
	}
	return []byte(key), nil
}

// DecodeKey implements Transcoder.
func (t *Default) DecodeKey(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", &DecodeError{What: "key", Err: fmt.Errorf("empty key")}
	}
	if !utf8.Valid(raw) {
		return "", &DecodeError{What: "key", Err: fmt.Errorf("key is not valid utf-8")}
	}
	return string(raw), nil
}

// EncodeValue implements Transcoder.
func (t *Default) EncodeValue(v any, format uint32) ([]byte, uint32, error) {
	var (
		data []byte
		err  error
	)
	switch format & FormatMask {
	case FormatJSON:
		data, err = json.Marshal(v)
	case FormatCBOR:
		data, err = t.cborEnc.Marshal(v)
	case FormatBytes:
		switch b := v.(type) {
		case []byte:
			data = b
		case string:
			data = []byte(b)
		default:
			err = fmt.Errorf("bytes format requires []byte, got %T", v)
		}
	case FormatUTF8:
		switch s := v.(type) {
		case string:
			data = []byte(s)
		case []byte:
			if !utf8.Valid(s) {
				err = fmt.Errorf("value is not valid utf-8")
			}
			data = s
		default:
			err = fmt.Errorf("utf8 format requires a string, got %T", v)
		}
	default:
		err = fmt.Errorf("unknown format 0x%X", format&FormatMask)
	}
	if err != nil {
		return nil, 0, err
	}
	if format&FormatZstd != 0 {
		data = t.zenc.EncodeAll(data, make([]byte, 0, len(data)))
	}
	return data, format & (FormatMask | FormatZstd), nil
}

// DecodeValue implements Transcoder.
func (t *Default) DecodeValue(raw []byte, flags uint32) (any, error) {
	if flags&FormatZstd != 0 {
		plain, err := t.zdec.DecodeAll(raw, nil)
		if err != nil {
			return nil, &DecodeError{What: "value", Flags: flags, Err: err}
		}
		raw = plain
	}

	switch flags & FormatMask {
	case FormatJSON:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &DecodeError{What: "value", Flags: flags, Err: err}
		}
		return v, nil
	case FormatCBOR:
		var v any
		if err := t.cborDec.Unmarshal(raw, &v); err != nil {
			return nil, &DecodeError{What: "value", Flags: flags, Err: err}
		}
		return v, nil
	case FormatBytes:
		return append([]byte{}, raw...), nil
	case FormatUTF8:
		if !utf8.Valid(raw) {
			return nil, &DecodeError{What: "value", Flags: flags, Err: fmt.Errorf("invalid utf-8")}
		}
		return string(raw), nil
	default:
		return nil, &DecodeError{What: "value", Flags: flags, Err: fmt.Errorf("unknown format")}
	}
}
