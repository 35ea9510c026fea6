// Package middleware wraps the client's command handler.
//
// Chain(A, B, C)(handler) runs A.before → B.before → C.before → handler →
// C.after → B.after → A.after. The innermost handler is the client's session
// exchange, so everything here runs before the session lock is taken.
package middleware

import (
	"context"

	"armlink/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Result

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, the first being the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
