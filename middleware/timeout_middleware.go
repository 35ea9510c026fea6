package middleware

import (
	"context"
	"time"

	"armlink/message"
)

// TimeoutMiddleware bounds each command with a deadline.
//
// The handler is not abandoned when the deadline passes: the session maps the
// deadline onto the socket, so the exchange itself returns. A reply that could
// arrive later would otherwise be read as the answer to the next command.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, req *message.Request) *message.Result {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}
