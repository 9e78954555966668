// Package `frame` delimits messages over a byte stream.
//
// A frame is a 4-byte big-endian unsigned length followed by exactly that many
// bytes of payload:
//
//	+--------+--------+--------+--------+----------...
//	|          Length (4B, BE)          | Payload...
//	+--------+--------+--------+--------+----------...
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Size of the length prefix.
	HeaderSize = 4

	// Default upper bound for a received payload (16 MiB).
	DefaultMaxSize = 16 << 20
)

var (
	// The peer closed the stream. When returned as-is, the close happened
	// cleanly at a frame boundary.
	ErrConnectionClosed = errors.New("frame: connection closed")

	// The peer closed the stream in the middle of a frame.
	// errors.Is(ErrTruncated, ErrConnectionClosed) holds.
	ErrTruncated = fmt.Errorf("%w mid-frame", ErrConnectionClosed)

	// The announced length is above the reader's limit.
	ErrFrameTooLarge = errors.New("frame: frame exceeds maximum size")
)

// flusher is implemented by buffered writers such as [bufio.Writer].
type flusher interface {
	Flush() error
}

// Write sends `payload` as a single frame. The prefix and the payload are
// written (and flushed, if `w` buffers) separately; if the second write fails,
// the stream is desynchronized and must be closed by the caller.
func Write(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if err := writeFlush(w, hdr[:]); err != nil {
		return fmt.Errorf("frame: Couldn't write length prefix (%w).", err)
	}
	if err := writeFlush(w, payload); err != nil {
		return fmt.Errorf("frame: Couldn't write payload (%w).", err)
	}
	return nil
}

func writeFlush(w io.Writer, b []byte) error {
	if len(b) > 0 {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Read receives one frame. Payloads larger than `max` bytes are rejected with
// [ErrFrameTooLarge] before allocating; `max` <= 0 means no limit.
//
// A close before any byte of the prefix yields [ErrConnectionClosed]; a close
// anywhere after that yields [ErrTruncated]. Other I/O errors are returned wrapped.
func Read(r io.Reader, max int) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, readErr(err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if max > 0 && uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w (%v > %v)", ErrFrameTooLarge, n, max)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, readErr(err)
	}
	return payload, nil
}

func readErr(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return ErrConnectionClosed
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncated
	}
	return fmt.Errorf("frame: Read failed (%w).", err)
}
