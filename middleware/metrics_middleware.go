package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"armlink/message"
)

// Metrics holds the per-command collectors.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "armlink",
				Subsystem: "client",
				Name:      "commands_total",
				Help:      "Arm commands sent, by command and outcome.",
			},
			[]string{"command", "success"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "armlink",
				Subsystem: "client",
				Name:      "command_duration_seconds",
				Help:      "Arm command round-trip time in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
	for _, c := range []prometheus.Collector{m.commands, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func MetricsMiddleware(m *Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Result {
			start := time.Now()
			res := next(ctx, req)
			cmd := req.Command.String()
			m.duration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
			m.commands.WithLabelValues(cmd, strconv.FormatBool(res.Success)).Inc()
			return res
		}
	}
}
