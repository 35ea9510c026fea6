// Package transport owns the single TCP connection between a client and an arm controller.
//
// A Session is deliberately simple: no background reader, no multiplexing. The
// controller protocol has no request IDs, so the caller writes one frame and reads
// the reply before doing anything else on the same Session.
//
//	client ──Write(frame)──→ conn ──→ controller
//	client ←─ReadFull(n)──── conn ←── controller
//
// Context deadlines and cancellation are translated into socket deadlines, so a
// blocked read returns as soon as the caller gives up.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrConnectionLost wraps every read/write failure on an established session.
	ErrConnectionLost = errors.New("transport: connection lost")
)

// ConnectionError reports that no session could be established.
type ConnectionError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connect %s failed after %d attempt(s): %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// aLongTimeAgo is a non-zero time in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Session wraps one connection to the controller.
type Session struct {
	conn      net.Conn
	cfg       Config
	valid     atomic.Bool // False once closed or after any failed read/write
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to addr, retrying up to cfg.ConnectAttempts times with backoff.
func Dial(ctx context.Context, addr string, cfg Config) (*Session, error) {
	attempts := max(cfg.ConnectAttempts, 1)

	var lastErr error
	attempt := 1
	for ; ; attempt++ {
		dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return NewSession(conn, cfg), nil
		}
		lastErr = err
		if attempt >= attempts || ctx.Err() != nil {
			break
		}
		if err := sleepContext(ctx, NextBackoffDelay(cfg.Backoff, attempt)); err != nil {
			lastErr = err
			break
		}
	}
	return nil, &ConnectionError{Addr: addr, Attempts: attempt, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewSession wraps an already established connection.
func NewSession(conn net.Conn, cfg Config) *Session {
	s := &Session{conn: conn, cfg: cfg}
	s.valid.Store(true)
	return s
}

// Write sends b in full.
func (s *Session) Write(ctx context.Context, b []byte) error {
	if !s.valid.Load() {
		return fmt.Errorf("%w: write on invalid session", ErrConnectionLost)
	}
	stop := s.armDeadline(ctx, s.cfg.WriteTimeout, s.conn.SetWriteDeadline)
	_, err := s.conn.Write(b)
	stop()
	if err != nil {
		return s.fail(ctx, "write", err)
	}
	return nil
}

// ReadFull blocks until exactly n bytes have arrived.
func (s *Session) ReadFull(ctx context.Context, n int) ([]byte, error) {
	if !s.valid.Load() {
		return nil, fmt.Errorf("%w: read on invalid session", ErrConnectionLost)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	stop := s.armDeadline(ctx, s.cfg.ReadTimeout, s.conn.SetReadDeadline)
	_, err := io.ReadFull(s.conn, buf)
	stop()
	if err != nil {
		return nil, s.fail(ctx, fmt.Sprintf("read %d bytes", n), err)
	}
	return buf, nil
}

// IsValid reports whether the connection is open and no operation has failed on it.
func (s *Session) IsValid() bool {
	return s.valid.Load()
}

// RemoteAddr returns the controller address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close closes the connection. Later calls return the first call's result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.valid.Store(false)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// armDeadline applies the earlier of timeout and the context deadline, and
// forces an immediate deadline if ctx is cancelled mid-operation.
func (s *Session) armDeadline(ctx context.Context, timeout time.Duration, set func(time.Time) error) func() bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = set(deadline)
	return context.AfterFunc(ctx, func() {
		_ = set(aLongTimeAgo)
	})
}

func (s *Session) fail(ctx context.Context, op string, err error) error {
	s.valid.Store(false)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionLost, op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrConnectionLost, op, err)
}
