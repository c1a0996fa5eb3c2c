package messages

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the length prefix in bytes.
	FrameHeaderSize = 4
	// MaxFrameSize is the largest payload accepted on the wire.
	MaxFrameSize = 4 << 20
)

// ErrConnectionClosed is returned when the peer closed the stream.
type ErrConnectionClosed struct{}

func (e *ErrConnectionClosed) Error() string {
	return "connection closed"
}

// IsConnectionClosed reports whether err signals a closed stream.
func IsConnectionClosed(err error) bool {
	var closed *ErrConnectionClosed
	return errors.As(err, &closed)
}

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
type ErrFrameTooLarge struct {
	Size int
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds maximum of %d", e.Size, MaxFrameSize)
}

// WriteFrame writes a big-endian uint32 length prefix followed by the payload
// in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return &ErrFrameTooLarge{Size: len(payload)}
	}
	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %v", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	size := int(binary.BigEndian.Uint32(header[:]))
	if size > MaxFrameSize {
		return nil, &ErrFrameTooLarge{Size: size}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return payload, nil
}
