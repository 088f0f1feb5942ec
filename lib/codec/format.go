package codec

import (
	"fmt"
	"strings"
)

// Format flags stored with every value. The lower bits select the encoding,
// FormatZstd marks a compressed payload and can be combined with any encoding.
const (
	FormatJSON  uint32 = 0x00
	FormatCBOR  uint32 = 0x01
	FormatBytes uint32 = 0x02
	FormatUTF8  uint32 = 0x04
	FormatMask  uint32 = 0x07
	FormatZstd  uint32 = 0x10
)

// FormatName returns a readable name for format flags, e.g. "json" or "cbor+zstd".
func FormatName(flags uint32) string {
	var name string
	switch flags & FormatMask {
	case FormatJSON:
		name = "json"
	case FormatCBOR:
		name = "cbor"
	case FormatBytes:
		name = "bytes"
	case FormatUTF8:
		name = "utf8"
	default:
		name = fmt.Sprintf("format(0x%X)", flags&FormatMask)
	}
	if flags&FormatZstd != 0 {
		name += "+zstd"
	}
	return name
}

// ParseFormat parses the output of FormatName back into format flags.
func ParseFormat(s string) (uint32, error) {
	var flags uint32
	base, mod, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "+")
	if found {
		if mod != "zstd" {
			return 0, fmt.Errorf("unknown format modifier %q", mod)
		}
		flags |= FormatZstd
	}
	switch base {
	case "json", "":
		flags |= FormatJSON
	case "cbor":
		flags |= FormatCBOR
	case "bytes", "raw":
		flags |= FormatBytes
	case "utf8", "string":
		flags |= FormatUTF8
	default:
		return 0, fmt.Errorf("unknown format %q", base)
	}
	return flags, nil
}
