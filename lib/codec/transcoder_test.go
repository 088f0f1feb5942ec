package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	tc := MustDefault()

	raw, err := tc.EncodeKey("user::1")
	require.NoError(t, err)
	key, err := tc.DecodeKey(raw)
	require.NoError(t, err)
	assert.Equal(t, "user::1", key)

	_, err = tc.EncodeKey("")
	assert.Error(t, err)
	_, err = tc.EncodeKey(strings.Repeat("k", MaxKeyLength+1))
	assert.Error(t, err)

	_, err = tc.DecodeKey([]byte{0xff, 0xfe})
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "key", de.What)
}

func TestValueFormats(t *testing.T) {
	tc := MustDefault()

	tests := []struct {
		name   string
		in     any
		format uint32
		want   any
	}{
		{"json", map[string]any{"x": 1}, FormatJSON, map[string]any{"x": float64(1)}},
		{"cbor", map[string]any{"n": "v"}, FormatCBOR, map[string]any{"n": "v"}},
		{"bytes", []byte{1, 2, 3}, FormatBytes, []byte{1, 2, 3}},
		{"utf8", "hello", FormatUTF8, "hello"},
		{"json+zstd", []any{"a", "b"}, FormatJSON | FormatZstd, []any{"a", "b"}},
		{"utf8+zstd", strings.Repeat("abc", 100), FormatUTF8 | FormatZstd, strings.Repeat("abc", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, flags, err := tc.EncodeValue(tt.in, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.format, flags)

			out, err := tc.DecodeValue(raw, flags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDecodeValueErrors(t *testing.T) {
	tc := MustDefault()

	tests := []struct {
		name  string
		raw   []byte
		flags uint32
	}{
		{"bad json", []byte("{not json"), FormatJSON},
		{"bad utf8", []byte{0xff}, FormatUTF8},
		{"bad zstd", []byte("not zstd"), FormatBytes | FormatZstd},
		{"unknown format", []byte("x"), 0x03},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.DecodeValue(tt.raw, tt.flags)
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "value", de.What)
			assert.Equal(t, tt.flags, de.Flags)
		})
	}
}

func TestForceBytesIgnoresEncoding(t *testing.T) {
	tc := MustDefault()
	raw, _, err := tc.EncodeValue(map[string]any{"x": 1}, FormatJSON)
	require.NoError(t, err)

	out, err := tc.DecodeValue(raw, FormatBytes)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"x":1}`), out)
}

func TestEncodeValueTypeMismatch(t *testing.T) {
	tc := MustDefault()
	_, _, err := tc.EncodeValue(42, FormatBytes)
	assert.Error(t, err)
	_, _, err = tc.EncodeValue(42, FormatUTF8)
	assert.Error(t, err)
}

func TestFormatNames(t *testing.T) {
	tests := []struct {
		name  string
		flags uint32
	}{
		{"json", FormatJSON},
		{"cbor", FormatCBOR},
		{"bytes", FormatBytes},
		{"utf8", FormatUTF8},
		{"cbor+zstd", FormatCBOR | FormatZstd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, FormatName(tt.flags))
			flags, err := ParseFormat(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.flags, flags)
		})
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
	_, err = ParseFormat("json+gzip")
	assert.Error(t, err)
}
