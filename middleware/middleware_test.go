package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"armlink/message"
	"armlink/protocol"
)

// A handler that answers every command with "OK"
func okHandler(ctx context.Context, req *message.Request) *message.Result {
	return &message.Result{Command: req.Command, Success: true, Message: "OK"}
}

// A handler that blocks until its context ends, like a session read on a stalled device
func stalledHandler(ctx context.Context, req *message.Request) *message.Result {
	<-ctx.Done()
	return message.Failed(req.Command, ctx.Err())
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zerolog.New(zerolog.NewTestWriter(t)))(okHandler)

	res := handler(context.Background(), &message.Request{Command: protocol.CmdHome})
	if res == nil || !res.Success {
		t.Fatalf("expect successful result, got %+v", res)
	}

	failing := LoggingMiddleware(zerolog.Nop())(func(ctx context.Context, req *message.Request) *message.Result {
		return message.Failed(req.Command, errors.New("boom"))
	})
	if res := failing(context.Background(), &message.Request{Command: protocol.CmdStop}); res.Success {
		t.Fatal("logging must not alter the result")
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(okHandler)

	res := handler(context.Background(), &message.Request{Command: protocol.CmdStop})
	if !res.Success {
		t.Fatalf("expect success, got %+v", res)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(stalledHandler)

	res := handler(context.Background(), &message.Request{Command: protocol.CmdGetPosition})
	if res.Success || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %+v", res)
	}
}

func TestTimeoutDisabled(t *testing.T) {
	var hadDeadline bool
	handler := TimeoutMiddleware(0)(func(ctx context.Context, req *message.Request) *message.Result {
		_, hadDeadline = ctx.Deadline()
		return okHandler(ctx, req)
	})
	handler(context.Background(), &message.Request{Command: protocol.CmdHome})
	if hadDeadline {
		t.Fatal("zero timeout must not add a deadline")
	}
}

func TestRateLimitWaitsForToken(t *testing.T) {
	// 20 per second, burst 1: the second command waits about 50ms
	handler := RateLimitMiddleware(20, 1)(okHandler)
	req := &message.Request{Command: protocol.CmdStop}

	start := time.Now()
	for i := 0; i < 2; i++ {
		if res := handler(context.Background(), req); !res.Success {
			t.Fatalf("command %d failed: %+v", i, res)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("second command was not paced, elapsed %v", elapsed)
	}
}

func TestRateLimitCancelledWait(t *testing.T) {
	handler := RateLimitMiddleware(0.1, 1)(okHandler)
	req := &message.Request{Command: protocol.CmdStop}
	handler(context.Background(), req) // consume the only token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if res := handler(ctx, req); res.Success || res.Err == nil {
		t.Fatalf("expect rate limit failure, got %+v", res)
	}
}

func TestRetryOnlyListedCommandsOnDeviceFailure(t *testing.T) {
	calls := map[protocol.Command]int{}
	busy := func(ctx context.Context, req *message.Request) *message.Result {
		calls[req.Command]++
		if calls[req.Command] < 3 {
			return &message.Result{Command: req.Command, Success: false, Message: "busy"}
		}
		return &message.Result{Command: req.Command, Success: true}
	}
	handler := RetryMiddleware(zerolog.Nop(), 3, time.Millisecond, protocol.CmdGetPosition)(busy)

	if res := handler(context.Background(), &message.Request{Command: protocol.CmdGetPosition}); !res.Success {
		t.Fatalf("expect success after retries, got %+v", res)
	}
	if calls[protocol.CmdGetPosition] != 3 {
		t.Errorf("GetPosition calls: got %d, want 3", calls[protocol.CmdGetPosition])
	}

	if res := handler(context.Background(), &message.Request{Command: protocol.CmdMoveXYZ}); res.Success {
		t.Fatal("MoveXYZ must not be retried")
	}
	if calls[protocol.CmdMoveXYZ] != 1 {
		t.Errorf("MoveXYZ calls: got %d, want 1", calls[protocol.CmdMoveXYZ])
	}
}

func TestRetrySkipsLocalFailures(t *testing.T) {
	calls := 0
	lost := func(ctx context.Context, req *message.Request) *message.Result {
		calls++
		return message.Failed(req.Command, errors.New("connection lost"))
	}
	handler := RetryMiddleware(zerolog.Nop(), 5, time.Millisecond, protocol.CmdGetPosition)(lost)
	handler(context.Background(), &message.Request{Command: protocol.CmdGetPosition})
	if calls != 1 {
		t.Fatalf("calls: got %d, want 1", calls)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	handler := MetricsMiddleware(m)(okHandler)
	for i := 0; i < 3; i++ {
		handler(context.Background(), &message.Request{Command: protocol.CmdHome})
	}

	if got := testutil.ToFloat64(m.commands.WithLabelValues("Home", "true")); got != 3 {
		t.Fatalf("commands_total{Home,true}: got %v, want 3", got)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("registering twice on one registry must fail")
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Result {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	handler := Chain(mark("a"), mark("b"), TimeoutMiddleware(time.Second))(okHandler)

	res := handler(context.Background(), &message.Request{Command: protocol.CmdHome})
	if !res.Success {
		t.Fatalf("expect success, got %+v", res)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order %v", order)
	}
}
