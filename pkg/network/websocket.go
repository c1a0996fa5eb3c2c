package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/messages"
	"nhooyr.io/websocket"
)

// WebSocketStream carries one frame per binary WebSocket message.
type WebSocketStream struct {
	conn       *websocket.Conn
	remoteAddr string
	closeOnce  sync.Once
	closed     chan struct{}
}

func NewWebSocketStream(conn *websocket.Conn, remoteAddr string) *WebSocketStream {
	conn.SetReadLimit(messages.MaxFrameSize)
	return &WebSocketStream{
		conn:       conn,
		remoteAddr: remoteAddr,
		closed:     make(chan struct{}),
	}
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (*WebSocketStream, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial WebSocket %s: %v", url, err)
	}
	return NewWebSocketStream(conn, url), nil
}

func (s *WebSocketStream) ReadFrame(ctx context.Context) ([]byte, error) {
	msgType, b, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			return nil, &messages.ErrConnectionClosed{}
		}
		select {
		case <-s.closed:
			return nil, &messages.ErrConnectionClosed{}
		default:
		}
		return nil, fmt.Errorf("failed to read WebSocket message: %v", err)
	}
	if msgType != websocket.MessageBinary {
		return nil, &ErrNonBinaryMessage{}
	}
	return b, nil
}

func (s *WebSocketStream) WriteFrame(ctx context.Context, payload []byte) error {
	if len(payload) > messages.MaxFrameSize {
		return &messages.ErrFrameTooLarge{Size: len(payload)}
	}
	if err := s.conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}

// Close starts the close handshake without waiting for the peer.
func (s *WebSocketStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		go func() {
			if err := s.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
				log.Trace("WebSocket close handshake with %s failed: %v", s.remoteAddr, err)
			}
		}()
	})
	return nil
}

// Done is closed once Close has been called.
func (s *WebSocketStream) Done() <-chan struct{} {
	return s.closed
}

func (s *WebSocketStream) RemoteAddr() string {
	return s.remoteAddr
}

// ErrNonBinaryMessage is returned when a peer sends a text message.
type ErrNonBinaryMessage struct{}

func (e *ErrNonBinaryMessage) Error() string {
	return "non binary message received"
}

// WebSocketListener is an http.Handler that upgrades requests and hands the
// resulting streams to Accept.
type WebSocketListener struct {
	addr      string
	streams   chan *WebSocketStream
	closeOnce sync.Once
	closed    chan struct{}
}

func NewWebSocketListener(addr string) *WebSocketListener {
	return &WebSocketListener{
		addr:    addr,
		streams: make(chan *WebSocketStream),
		closed:  make(chan struct{}),
	}
}

func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.closed:
		http.Error(w, "not accepting connections", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	stream := NewWebSocketStream(conn, r.RemoteAddr)
	log.Debug("New WebSocket connection from %s", r.RemoteAddr)

	select {
	case l.streams <- stream:
	case <-l.closed:
		stream.Close()
		return
	case <-r.Context().Done():
		stream.Close()
		return
	}

	// The handler owns the hijacked connection until the stream is closed.
	<-stream.Done()
}

func (l *WebSocketListener) Accept(ctx context.Context) (Stream, error) {
	select {
	case stream := <-l.streams:
		return stream, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrListenerClosed
		}
		return nil, ctx.Err()
	}
}

func (l *WebSocketListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	return nil
}

func (l *WebSocketListener) Addr() string {
	return l.addr
}
