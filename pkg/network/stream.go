package network

import (
	"context"
	"errors"
)

// ErrListenerClosed is returned by Accept once a listener has been closed.
var ErrListenerClosed = errors.New("listener closed")

// Stream is a duplex, message-framed byte stream to one peer.
type Stream interface {
	// ReadFrame blocks until one complete frame is available.
	ReadFrame(ctx context.Context) ([]byte, error)
	// WriteFrame writes one complete frame. It is not safe for concurrent use.
	WriteFrame(ctx context.Context, payload []byte) error
	// Close closes the stream, unblocking pending reads.
	Close() error
	// RemoteAddr describes the peer.
	RemoteAddr() string
}

// Listener yields inbound streams.
type Listener interface {
	// Accept blocks until a peer connects, the listener is closed, or ctx is done.
	Accept(ctx context.Context) (Stream, error)
	Close() error
	Addr() string
}
