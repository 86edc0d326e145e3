package dpi

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

var (
	// ErrBadFrame is an exported constant or variable used by the tunnel gateway.
	ErrBadFrame = errors.New("malformed verdict request frame")
	// ErrFrameTooLarge is an exported constant or variable used by the tunnel gateway.
	ErrFrameTooLarge = errors.New("verdict request frame exceeds limit")
	// ErrServerClosed is an exported constant or variable used by the tunnel gateway.
	ErrServerClosed = errors.New("verdict server closed")
)

const (
	// DefaultMaxFrame is an exported constant or variable used by the tunnel gateway.
	DefaultMaxFrame = 1 << 20
	// DefaultIOTimeout is an exported constant or variable used by the tunnel gateway.
	DefaultIOTimeout = 5 * time.Second
)

// ServerConfig defines a public type used by ztgate APIs.
//
// ServerConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ServerConfig struct {
	MaxFrame  int
	IOTimeout time.Duration

	// Fixed-window per-source throttle; zero disables it. The verdict socket
	// is loopback-local, so counters are in-process rather than shared.
	MaxConnsPerSource int
	ThrottleWindow    time.Duration
}

// Server answers verdict queries over the length-prefixed socket protocol.
// The engine's automaton is immutable after construction and shared across
// connections without per-request locking.
type Server struct {
	engine   *Engine
	cfg      ServerConfig
	throttle *sourceThrottle

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(engine *Engine, cfg ServerConfig) (*Server, error) {
	if engine == nil {
		return nil, errors.New("verdict server requires an engine")
	}
	if cfg.MaxFrame <= 0 {
		cfg.MaxFrame = DefaultMaxFrame
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	s := &Server{engine: engine, cfg: cfg}
	if cfg.MaxConnsPerSource > 0 {
		window := cfg.ThrottleWindow
		if window <= 0 {
			window = time.Second
		}
		s.throttle = newSourceThrottle(cfg.MaxConnsPerSource, window)
	}
	return s, nil
}

// ListenAndServe describes the listenandserve operation and its observable behavior.
//
// ListenAndServe may return an error when input validation, dependency calls, or security checks fail.
// ListenAndServe does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections until the listener is closed, handling each
// connection in its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}

		if s.throttle != nil && !s.throttle.allow(sourceHost(conn.RemoteAddr()), time.Now()) {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Addr describes the addr operation and its observable behavior.
//
// Addr may return an error when input validation, dependency calls, or security checks fail.
// Addr does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight verdicts, honoring ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConn serves exactly one request: read a frame, answer one JSON
// verdict document, close.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))

	packet, err := readFrame(conn, s.cfg.MaxFrame)
	if err != nil {
		s.writeError(conn, err)
		return
	}

	verdict := s.engine.VerdictForPacket(packet)
	if err := json.NewEncoder(conn).Encode(verdict); err != nil {
		log.Printf("ztgate: verdict response write failed: %v", err)
	}
}

// writeError sends a best-effort error JSON before the close; the protocol
// error itself already decided the connection's fate.
func (s *Server) writeError(conn net.Conn, err error) {
	_ = json.NewEncoder(conn).Encode(map[string]string{"error": err.Error()})
}

func readFrame(r io.Reader, maxFrame int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if int64(length) > int64(maxFrame) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	packet := make([]byte, length)
	if _, err := io.ReadFull(r, packet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return packet, nil
}

func sourceHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// sourceThrottle is a fixed-window connection counter per source host:
// increment on arrival, reset when the window rolls over.
type sourceThrottle struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	counts  map[string]int
	started time.Time
}

func newSourceThrottle(limit int, window time.Duration) *sourceThrottle {
	return &sourceThrottle{
		limit:  limit,
		window: window,
		counts: make(map[string]int),
	}
}

func (t *sourceThrottle) allow(source string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started.IsZero() || now.Sub(t.started) >= t.window {
		t.started = now
		clear(t.counts)
	}
	if t.counts[source] >= t.limit {
		return false
	}
	t.counts[source]++
	return true
}
