// Package client is the command client for one arm controller.
//
// Every operation is a synchronous request/response over a single session:
//
//	MoveXYZ ──→ codec.Encode ──→ middleware chain ──→ exchange (session lock held)
//	                                                   write frame
//	                                                   read 1-byte flag
//	                                                   read 4-byte length
//	                                                   read body ──→ codec.Decode
//
// Operations return a message.Result and never an error: a transport or protocol
// failure during a command becomes Success=false and the client drops to
// Disconnected. Only Connect and Dial return errors, since there is no session yet
// to degrade gracefully.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"armlink/codec"
	"armlink/message"
	"armlink/middleware"
	"armlink/protocol"
	"armlink/transport"
)

var (
	ErrNotConnected     = errors.New("client: not connected")
	ErrAlreadyConnected = errors.New("client: already connected")
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option customizes a Client at construction.
type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records every command in m.
func WithMetrics(m *middleware.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithMiddleware appends mws inside the built-in chain, closest to the session.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.extra = append(c.extra, mws...)
	}
}

// Client talks to one arm controller. It is safe for concurrent use, but
// commands are serialized: the protocol allows one request in flight.
type Client struct {
	cfg     Config
	codec   codec.Codec
	logger  zerolog.Logger
	metrics *middleware.Metrics
	extra   []middleware.Middleware
	handler middleware.HandlerFunc

	mu      sync.Mutex // Held for a whole exchange and for connect/close
	session *transport.Session
	state   atomic.Int32
}

// New builds a disconnected client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		codec:  codec.GetCodec(cfg.Layout),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "client").Str("addr", cfg.Address).Logger()

	// Logging outermost so it sees the final outcome, timeout innermost so it
	// bounds each attempt rather than the whole retry loop
	mws := []middleware.Middleware{middleware.LoggingMiddleware(c.logger)}
	if c.metrics != nil {
		mws = append(mws, middleware.MetricsMiddleware(c.metrics))
	}
	if cfg.CommandRate > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.CommandRate, max(cfg.CommandBurst, 1)))
	}
	if cfg.QueryRetries > 0 {
		mws = append(mws, middleware.RetryMiddleware(c.logger, cfg.QueryRetries, cfg.QueryRetryDelay, protocol.CmdGetPosition))
	}
	mws = append(mws, middleware.TimeoutMiddleware(cfg.CommandTimeout))
	mws = append(mws, c.extra...)
	c.handler = middleware.Chain(mws...)(c.exchange)
	return c
}

// Dial builds a client and connects it.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	c := New(cfg, opts...)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect opens the session. It is the only operation that fails with an error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateConnected && c.session != nil && c.session.IsValid() {
		return ErrAlreadyConnected
	}
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}

	c.state.Store(int32(StateConnecting))
	s, err := transport.Dial(ctx, c.cfg.Address, c.cfg.Transport)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.logger.Error().Err(err).Msg("connect failed")
		return err
	}
	c.session = s
	c.state.Store(int32(StateConnected))
	c.logger.Info().Str("layout", c.codec.Layout().String()).Msg("connected")
	return nil
}

// Close releases the session. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	c.state.Store(int32(StateDisconnected))
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.logger.Info().Msg("disconnected")
	return err
}

// Shutdown homes the arm if configured, bounded by ShutdownTimeout, then closes
// the session. A failed home is logged and otherwise ignored.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.cfg.HomeOnShutdown && c.State() == StateConnected {
		homeCtx := ctx
		if c.cfg.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			homeCtx, cancel = context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
			defer cancel()
		}
		if res := c.Home(homeCtx); !res.Success {
			c.logger.Warn().Str("reply", res.Message).Msg("home on shutdown failed")
		}
	}
	return c.Close()
}

// MoveXYZ moves the tool point to (x, y, z) millimetres over durationMs.
func (c *Client) MoveXYZ(ctx context.Context, x, y, z float64, durationMs int32) message.Result {
	c.warn(protocol.CmdMoveXYZ, ValidateMove(x, y, z))
	payload := c.codec.Encode([]float64{x, y, z}, c.MoveDuration(durationMs))
	return c.SendCommand(ctx, protocol.CmdMoveXYZ, payload)
}

// MoveWithAngles moves to (x, y, z) with explicit joint angles in degrees.
func (c *Client) MoveWithAngles(ctx context.Context, x, y, z, alpha, alpha1, alpha2 float64, durationMs int32) message.Result {
	warnings := append(ValidateMove(x, y, z), ValidateAngles(alpha, alpha1, alpha2)...)
	c.warn(protocol.CmdMoveAngles, warnings)
	payload := c.codec.Encode([]float64{x, y, z, alpha, alpha1, alpha2}, c.MoveDuration(durationMs))
	return c.SendCommand(ctx, protocol.CmdMoveAngles, payload)
}

// Stop halts the current motion. It waits for any in-flight command to finish first.
func (c *Client) Stop(ctx context.Context) message.Result {
	return c.SendCommand(ctx, protocol.CmdStop, nil)
}

// Home returns the arm to its home pose.
func (c *Client) Home(ctx context.Context) message.Result {
	return c.SendCommand(ctx, protocol.CmdHome, nil)
}

// GetPosition queries the current position. A text reply, or fewer than three
// values, is reported as a failure even when the controller flagged success.
func (c *Client) GetPosition(ctx context.Context) (message.Position, message.Result) {
	res := c.SendCommand(ctx, protocol.CmdGetPosition, nil)
	if !res.Success {
		return message.Position{}, res
	}
	if !res.Payload.Vector {
		res.Success = false
		res.Message = fmt.Sprintf("expected position vector, got text %q", res.Payload.Text)
		c.logger.Warn().Str("reply", res.Payload.Text).Msg("position reply is not a vector")
		return message.Position{}, res
	}
	pos, ok := message.PositionFromValues(res.Payload.Values)
	if !ok {
		res.Success = false
		res.Message = fmt.Sprintf("expected at least 3 position values, got %d", len(res.Payload.Values))
		c.logger.Warn().Int("values", len(res.Payload.Values)).Msg("position reply too short")
		return message.Position{}, res
	}
	return pos, res
}

// MoveOK is the boolean form of MoveXYZ for control loops: 1 on success, 0 otherwise.
func (c *Client) MoveOK(ctx context.Context, x, y, z float64) int {
	if c == nil {
		return 0
	}
	if c.MoveXYZ(ctx, x, y, z, 0).Success {
		return 1
	}
	return 0
}

// SendCommand sends one frame with an already encoded payload and returns the
// decoded reply. It is the primitive every other operation builds on.
func (c *Client) SendCommand(ctx context.Context, cmd protocol.Command, payload []byte) message.Result {
	return *c.handler(ctx, &message.Request{Command: cmd, Payload: payload})
}

// exchange is the innermost handler: one write, three reads, under the session lock.
func (c *Client) exchange(ctx context.Context, req *message.Request) *message.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateConnected || c.session == nil {
		return message.Failed(req.Command, ErrNotConnected)
	}

	res, err := c.roundTrip(ctx, c.session, req)
	if err != nil {
		// The stream position is unknown after any failure, so the session cannot be reused
		c.closeLocked()
		return message.Failed(req.Command, err)
	}
	return res
}

func (c *Client) roundTrip(ctx context.Context, s *transport.Session, req *message.Request) (*message.Result, error) {
	if err := s.Write(ctx, protocol.EncodeRequest(req.Command, req.Payload)); err != nil {
		return nil, err
	}

	flag, err := s.ReadFull(ctx, 1)
	if err != nil {
		return nil, err
	}
	lenBuf, err := s.ReadFull(ctx, 4)
	if err != nil {
		return nil, err
	}
	n, err := protocol.ParseLength(lenBuf, c.cfg.Limits)
	if err != nil {
		return nil, err
	}
	body, err := s.ReadFull(ctx, n)
	if err != nil {
		return nil, err
	}

	payload := codec.Decode(body)
	return &message.Result{
		Command: req.Command,
		Success: flag[0] != 0,
		Message: payload.String(),
		Payload: payload,
	}, nil
}

// MoveDuration is the duration sent for a move requested with durationMs:
// non-positive values fall back to the configured default.
func (c *Client) MoveDuration(durationMs int32) int32 {
	if durationMs > 0 {
		return durationMs
	}
	if c.cfg.DefaultDurationMs > 0 {
		return c.cfg.DefaultDurationMs
	}
	return DefaultMoveDurationMs
}

func (c *Client) warn(cmd protocol.Command, warnings []ValidationWarning) {
	for _, w := range warnings {
		c.logger.Warn().
			Str("cmd", cmd.String()).
			Str("field", w.Field).
			Float64("value", w.Value).
			Float64("min", w.Range.Min).
			Float64("max", w.Range.Max).
			Msg("argument outside advisory range, sending anyway")
	}
}
