package middleware

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"armlink/message"
	"armlink/protocol"
)

// RetryMiddleware re-sends the listed commands when the controller answers
// with a failure flag. Local failures (Err != nil) are never retried: by then
// the session is gone. Only idempotent commands belong in the list.
func RetryMiddleware(logger zerolog.Logger, maxRetries int, baseDelay time.Duration, commands ...protocol.Command) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Result {
			res := next(ctx, req)
			if !slices.Contains(commands, req.Command) {
				return res
			}
			for i := 0; i < maxRetries; i++ {
				if res.Success || res.Err != nil {
					return res
				}
				logger.Debug().Int("attempt", i+1).Str("cmd", req.Command.String()).Str("reply", res.Message).Msg("retrying command")

				timer := time.NewTimer(baseDelay * time.Duration(1<<i)) // Exponential backoff
				select {
				case <-ctx.Done():
					timer.Stop()
					return res
				case <-timer.C:
				}
				res = next(ctx, req)
			}
			return res
		}
	}
}
