package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/messages"
)

// TCPStream frames messages over a TCP connection with a length prefix.
type TCPStream struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPStream wraps an established connection and enables TCP_NODELAY.
func NewTCPStream(conn net.Conn) *TCPStream {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		// Ticks are small and frequent, favor latency over throughput.
		if err := tcpConn.SetNoDelay(true); err != nil {
			log.Warn("Failed to set TCP_NODELAY for %s: %v", conn.RemoteAddr(), err)
		}
	}
	return &TCPStream{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// DialTCP actively connects to addr.
func DialTCP(ctx context.Context, addr string) (*TCPStream, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", addr, err)
	}
	return NewTCPStream(conn), nil
}

func (s *TCPStream) ReadFrame(_ context.Context) ([]byte, error) {
	b, err := messages.ReadFrame(s.reader)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, &messages.ErrConnectionClosed{}
		}
		return nil, err
	}
	return b, nil
}

func (s *TCPStream) WriteFrame(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set write deadline: %v", err)
		}
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	return messages.WriteFrame(s.conn, payload)
}

func (s *TCPStream) Close() error {
	return s.conn.Close()
}

func (s *TCPStream) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// TCPListener accepts TCP streams on a single port.
type TCPListener struct {
	listener net.Listener
}

// ListenTCP binds addr. A bind failure is returned to the caller.
func ListenTCP(addr string) (*TCPListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve TCP address %s: %v", addr, err)
	}
	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on TCP address %s: %v", addr, err)
	}
	log.Info("TCP listener bound on %s", listener.Addr().String())
	return &TCPListener{listener: listener}, nil
}

func (l *TCPListener) Accept(_ context.Context) (Stream, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, fmt.Errorf("failed to accept TCP connection: %v", err)
	}
	return NewTCPStream(conn), nil
}

func (l *TCPListener) Close() error {
	return l.listener.Close()
}

func (l *TCPListener) Addr() string {
	return l.listener.Addr().String()
}
