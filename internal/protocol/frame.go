package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// DefaultMaxFrameSize is the maximum permitted frame payload size, per the
// framing contract: a 4-byte little-endian length prefix followed by that
// many bytes of UTF-8 JSON.
const DefaultMaxFrameSize uint32 = 10 * 1024 * 1024 // 10 MiB

// frameHeaderSize is the length of the length-prefix header, in bytes.
const frameHeaderSize = 4

// ErrFrameTooLarge is returned by ReadFrame when the advertised payload
// length exceeds the configured maximum. Callers must treat this as a
// protocol error and close the connection; it is never surfaced to the
// peer as a JSON error response.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// WriteFrame writes a single framed message to conn: a 4-byte
// little-endian length prefix followed by data.
func WriteFrame(conn net.Conn, data []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header, uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// ReadFrame reads a single framed message from conn using buf as scratch
// space, growing it if the payload does not fit. It enforces maxFrameSize
// and performs length-exact reads: a peer that closes mid-frame surfaces
// io.ErrUnexpectedEOF, which callers must treat the same as any other
// protocol error.
func ReadFrame(conn net.Conn, buf []byte, maxFrameSize uint32) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header)
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, maxFrameSize)
	}

	if length == 0 {
		return []byte{}, nil
	}

	if cap(buf) < int(length) {
		buf = make([]byte, length)
	}
	buf = buf[:length]

	if _, err := io.ReadFull(conn, buf); err != nil {
		// A close after a complete header but before any payload byte is
		// still a close mid-frame, not a clean end of stream.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return buf, nil
}
