// Package observability serves the HTTP side endpoints of the armlink tools:
// prometheus metrics plus liveness and readiness probes.
package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ReadyFunc reports whether the process can currently do useful work.
type ReadyFunc func() bool

// NewRouter builds the base routes. Callers may add their own before serving.
func NewRouter(app string, gatherer prometheus.Gatherer, ready ReadyFunc) *gin.Engine {
	started := time.Now()
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(started).String(),
			"service": app,
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ok := ready == nil || ready()
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ok, "service": app})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return router
}

// Serve runs handler on addr until ctx ends, then shuts the server down.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, l, handler, logger)
}

func ServeListener(ctx context.Context, l net.Listener, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logger.Info().Str("addr", l.Addr().String()).Msg("observability endpoint listening")
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
