// Package simulator is an in-process arm controller that speaks the wire protocol.
//
// It exists for tests and for running armctl without hardware. Each connection
// is served by one goroutine that reads a request, asks the Handler for a reply
// and writes it back, strictly one frame at a time:
//
//	Accept conn → handleConn
//	  → loop: ReadRequest → Handler.ServeArm → WriteResponse
package simulator

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"armlink/protocol"
)

// ErrHangUp makes the server drop the connection instead of replying.
var ErrHangUp = errors.New("simulator: hang up")

// Handler produces the reply for one request.
type Handler interface {
	ServeArm(req *protocol.Request) (*protocol.Response, error)
}

type HandlerFunc func(req *protocol.Request) (*protocol.Response, error)

func (f HandlerFunc) ServeArm(req *protocol.Request) (*protocol.Response, error) {
	return f(req)
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegisterer counts served frames in reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) {
		s.frames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "armlink",
				Subsystem: "simulator",
				Name:      "frames_total",
				Help:      "Request frames served, by command and reply flag.",
			},
			[]string{"command", "success"},
		)
		reg.MustRegister(s.frames)
	}
}

// Server accepts controller connections.
type Server struct {
	handler  Handler
	limits   protocol.Limits
	logger   zerolog.Logger
	frames   *prometheus.CounterVec
	listener net.Listener
	wg       sync.WaitGroup // Tracks open connections for graceful shutdown
	shutdown atomic.Bool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(h Handler, opts ...Option) *Server {
	s := &Server{
		handler: h,
		limits:  protocol.DefaultLimits(),
		logger:  log.Logger,
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "simulator").Logger()
	return s
}

// ListenAndServe listens on address and serves until Shutdown.
func (s *Server) ListenAndServe(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		return l.Close()
	}
	s.listener = l
	s.mu.Unlock()
	s.logger.Info().Str("addr", l.Addr().String()).Msg("simulator listening")

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		if !s.track(conn, true) {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.track(conn, false)
	defer conn.Close()

	logger := s.logger.With().Str("peer", conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("controller connection opened")
	for {
		req, err := protocol.ReadRequest(conn, s.limits)
		if err != nil {
			logger.Debug().Err(err).Msg("controller connection closed")
			return
		}

		resp, err := s.handler.ServeArm(req)
		if err != nil {
			logger.Debug().Err(err).Str("cmd", req.Command.String()).Msg("dropping connection")
			return
		}
		if s.frames != nil {
			s.frames.WithLabelValues(req.Command.String(), fmt.Sprint(resp.Success)).Inc()
		}
		if err := protocol.WriteResponse(conn, resp); err != nil {
			logger.Debug().Err(err).Msg("write reply failed")
			return
		}
	}
}

// track adds or removes conn. Adding also registers the connection goroutine
// and fails once Shutdown has started, so Shutdown never waits on a connection
// it did not close.
func (s *Server) track(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, conn)
		return true
	}
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

// Shutdown stops accepting, closes open connections and waits for their
// goroutines, up to timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for controller connections to close")
	}
}
