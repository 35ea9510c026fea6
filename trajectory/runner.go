// Package trajectory runs ordered sequences of arm moves.
//
// The controller never reports motion completion, so the runner waits a fixed
// settle time after each move: durationMs plus a 100ms margin. A run stops at
// the first failed move; later points are never sent.
package trajectory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"armlink/client"
	"armlink/message"
)

// SettleMargin is added to every move duration before the next point is sent.
const SettleMargin = 100 * time.Millisecond

// Mover is the part of the arm client the runner drives.
type Mover interface {
	MoveXYZ(ctx context.Context, x, y, z float64, durationMs int32) message.Result
	MoveWithAngles(ctx context.Context, x, y, z, alpha, alpha1, alpha2 float64, durationMs int32) message.Result
}

// durationResolver is implemented by movers that substitute a default for
// non-positive durations, so the settle time matches what the arm was told.
type durationResolver interface {
	MoveDuration(durationMs int32) int32
}

// ArgumentError reports inputs rejected before anything was sent.
type ArgumentError struct {
	Points, Angles int
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("trajectory: %d points but %d angle sets", e.Points, e.Angles)
}

// StepError reports the move that stopped a run.
type StepError struct {
	Index  int
	Point  message.Point
	Result message.Result
}

func (e *StepError) Error() string {
	return fmt.Sprintf("trajectory: point %d (%.3f, %.3f, %.3f) failed: %s", e.Index, e.Point.X, e.Point.Y, e.Point.Z, e.Result.Message)
}

func (e *StepError) Unwrap() error {
	return e.Result.Err
}

// Report summarizes a run. FailedIndex is -1 when no move failed.
type Report struct {
	Total       int
	Completed   int
	FailedIndex int
	Last        message.Result
}

// Runner sequences moves on one arm.
type Runner struct {
	Arm    Mover
	Logger zerolog.Logger
	// DefaultDurationMs stands in for a non-positive duration when Arm does
	// not resolve durations itself.
	DefaultDurationMs int32
	// Sleep waits between points; nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(arm Mover) *Runner {
	return &Runner{
		Arm:               arm,
		Logger:            log.Logger.With().Str("component", "trajectory").Logger(),
		DefaultDurationMs: client.DefaultMoveDurationMs,
	}
}

// StepDelay is the wait between two points of a run.
func StepDelay(durationMs int32) time.Duration {
	return time.Duration(durationMs)*time.Millisecond + SettleMargin
}

// RunTrajectory moves through points in order.
func (r *Runner) RunTrajectory(ctx context.Context, points []message.Point, durationMs int32) (Report, error) {
	return r.run(ctx, points, durationMs, func(i int, p message.Point) message.Result {
		return r.Arm.MoveXYZ(ctx, p.X, p.Y, p.Z, durationMs)
	})
}

// RunTrajectoryWithAngles moves through points with the matching joint angles.
// Mismatched lengths fail before any command is sent.
func (r *Runner) RunTrajectoryWithAngles(ctx context.Context, points []message.Point, angles []message.Angles, durationMs int32) (Report, error) {
	if len(points) != len(angles) {
		return Report{Total: len(points), FailedIndex: -1}, &ArgumentError{Points: len(points), Angles: len(angles)}
	}
	return r.run(ctx, points, durationMs, func(i int, p message.Point) message.Result {
		a := angles[i]
		return r.Arm.MoveWithAngles(ctx, p.X, p.Y, p.Z, a.Alpha, a.Alpha1, a.Alpha2, durationMs)
	})
}

func (r *Runner) run(ctx context.Context, points []message.Point, durationMs int32, move func(int, message.Point) message.Result) (Report, error) {
	report := Report{Total: len(points), FailedIndex: -1}
	delay := StepDelay(r.effectiveDuration(durationMs))

	for i, p := range points {
		if i > 0 {
			if err := r.sleep(ctx, delay); err != nil {
				r.Logger.Warn().Err(err).Int("completed", report.Completed).Int("total", report.Total).Msg("trajectory cancelled")
				return report, err
			}
		}

		res := move(i, p)
		report.Last = res
		if !res.Success {
			report.FailedIndex = i
			r.Logger.Error().
				Int("index", i).
				Int("completed", report.Completed).
				Int("total", report.Total).
				Str("reply", res.Message).
				Msg("trajectory aborted")
			return report, &StepError{Index: i, Point: p, Result: res}
		}
		report.Completed++
		r.Logger.Info().Int("index", i).Int("total", report.Total).Msg("trajectory point reached")
	}

	r.Logger.Info().Int("points", report.Completed).Msg("trajectory complete")
	return report, nil
}

// effectiveDuration is the move time the arm actually receives for durationMs.
func (r *Runner) effectiveDuration(durationMs int32) int32 {
	if res, ok := r.Arm.(durationResolver); ok {
		return res.MoveDuration(durationMs)
	}
	if durationMs > 0 {
		return durationMs
	}
	return max(r.DefaultDurationMs, 0)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
