package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"armlink/message"
)

// LoggingMiddleware writes one status line per command.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Result {
			start := time.Now()
			res := next(ctx, req)
			duration := time.Since(start)

			var event *zerolog.Event
			switch {
			case res.Err != nil:
				event = logger.Error().Err(res.Err)
			case !res.Success:
				event = logger.Warn()
			default:
				event = logger.Info()
			}
			event.
				Str("cmd", req.Command.String()).
				Int("payload_bytes", len(req.Payload)).
				Bool("success", res.Success).
				Str("reply", res.Message).
				Dur("took", duration).
				Msg("arm command")
			return res
		}
	}
}
