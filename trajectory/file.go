package trajectory

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"

	"armlink/message"
)

// File is a trajectory definition on disk:
//
//	duration_ms = 1000
//
//	[[points]]
//	x = 0.0
//	y = 10.0
//	z = 15.0
//	alpha = 90.0     # alpha, alpha1, alpha2 are optional,
//	alpha1 = -45.0   # but must be set on every point or none
//	alpha2 = 45.0
type File struct {
	DurationMs int32       `toml:"duration_ms"`
	Points     []filePoint `toml:"points"`
	withAngles bool
}

type filePoint struct {
	X      float64  `toml:"x"`
	Y      float64  `toml:"y"`
	Z      float64  `toml:"z"`
	Alpha  *float64 `toml:"alpha"`
	Alpha1 *float64 `toml:"alpha1"`
	Alpha2 *float64 `toml:"alpha2"`
}

func (p filePoint) hasAngles() bool {
	return p.Alpha != nil || p.Alpha1 != nil || p.Alpha2 != nil
}

// LoadFile reads and checks a trajectory file.
func LoadFile(path string) (File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, fmt.Errorf("load trajectory: %w", err)
	}
	if len(f.Points) == 0 {
		return File{}, fmt.Errorf("load trajectory %s: no points", path)
	}
	f.withAngles = f.Points[0].hasAngles()
	for i, p := range f.Points {
		if p.hasAngles() != f.withAngles {
			return File{}, fmt.Errorf("load trajectory %s: point %d: angles must be given for all points or none", path, i)
		}
		if f.withAngles && (p.Alpha == nil || p.Alpha1 == nil || p.Alpha2 == nil) {
			return File{}, fmt.Errorf("load trajectory %s: point %d: alpha, alpha1 and alpha2 are required together", path, i)
		}
	}
	return f, nil
}

// WithAngles reports whether the file carries joint angles.
func (f File) WithAngles() bool {
	return f.withAngles
}

func (f File) Targets() []message.Point {
	out := make([]message.Point, len(f.Points))
	for i, p := range f.Points {
		out[i] = message.Point{X: p.X, Y: p.Y, Z: p.Z}
	}
	return out
}

// Angles returns the joint angles, or nil when the file has none.
func (f File) Angles() []message.Angles {
	if !f.withAngles {
		return nil
	}
	out := make([]message.Angles, len(f.Points))
	for i, p := range f.Points {
		out[i] = message.Angles{Alpha: *p.Alpha, Alpha1: *p.Alpha1, Alpha2: *p.Alpha2}
	}
	return out
}

// Run executes the file on r, using the file's duration unless override is positive.
func (f File) Run(ctx context.Context, r *Runner, override int32) (Report, error) {
	duration := f.DurationMs
	if override > 0 {
		duration = override
	}
	if f.withAngles {
		return r.RunTrajectoryWithAngles(ctx, f.Targets(), f.Angles(), duration)
	}
	return r.RunTrajectory(ctx, f.Targets(), duration)
}
