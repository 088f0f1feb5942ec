package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	headerSize = 20

	// DefaultMaxFrameSize bounds the payload of a single frame if nothing else is configured.
	DefaultMaxFrameSize = 64 * 1024 * 1024 // 64 MB
)

// ErrFrameTooLarge is returned by readFrame if the announced payload exceeds the limit.
var ErrFrameTooLarge = fmt.Errorf("frame exceeds the maximum frame size")

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: shardId (uint64, big endian)
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer.
// If the buffer is too small, a new buffer is allocated for the data, so the
// returned data only aliases buf if it fits. maxSize <= 0 means DefaultMaxFrameSize.
func readFrame(conn net.Conn, buf []byte, maxSize int) (uint64, uint64, []byte, error) {
	header := make([]byte, headerSize)
	if len(buf) >= headerSize {
		header = buf[:headerSize]
	}

	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, 0, nil, err
	}

	shardID := binary.BigEndian.Uint64(header[:8])
	requestID := binary.BigEndian.Uint64(header[8:16])
	contentLength := int(binary.BigEndian.Uint32(header[16:20]))

	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	if contentLength > maxSize {
		return shardID, requestID, nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, contentLength, maxSize)
	}

	if contentLength == 0 {
		return shardID, requestID, []byte{}, nil
	}

	if len(buf) < contentLength {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return 0, 0, nil, err
	}

	return shardID, requestID, buf[:contentLength], nil
}
