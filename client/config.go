package client

import (
	"net"
	"strconv"
	"time"

	"armlink/codec"
	"armlink/protocol"
	"armlink/transport"
)

// DefaultMoveDurationMs is used when a move is issued with a non-positive duration.
const DefaultMoveDurationMs int32 = 1500

// Config describes one arm controller and how commands are sent to it.
type Config struct {
	Address           string // host:port of the controller
	Transport         transport.Config
	Layout            codec.Layout // Motion payload layout, shared by MoveXYZ and MoveAngles
	DefaultDurationMs int32
	Limits            protocol.Limits

	CommandTimeout  time.Duration // Per command, 0 disables
	CommandRate     float64       // Commands per second, 0 disables pacing
	CommandBurst    int
	QueryRetries    int // Retries of GetPosition when the controller reports failure
	QueryRetryDelay time.Duration

	HomeOnShutdown  bool
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Address:           net.JoinHostPort("127.0.0.1", strconv.Itoa(protocol.DefaultPort)),
		Transport:         transport.DefaultConfig(),
		Layout:            codec.LayoutRaw,
		DefaultDurationMs: DefaultMoveDurationMs,
		Limits:            protocol.DefaultLimits(),
		CommandBurst:      1,
		QueryRetryDelay:   100 * time.Millisecond,
		HomeOnShutdown:    true,
		ShutdownTimeout:   3 * time.Second,
	}
}
