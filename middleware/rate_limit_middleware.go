package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"armlink/message"
)

// RateLimitMiddleware paces commands with a token bucket. Commands wait for a
// token rather than being rejected; a cancelled wait fails the command.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Result {
			if err := limiter.Wait(ctx); err != nil {
				return message.Failed(req.Command, fmt.Errorf("rate limit: %w", err))
			}
			return next(ctx, req)
		}
	}
}
