// Package message defines the values exchanged between the arm client and its callers.
//
// A Request is what the client hands to the middleware chain; a Result is what every
// client operation returns. Results never carry panics or raw transport errors across
// the client boundary: a failed exchange is a Result with Success=false.
package message

import (
	"fmt"
	"strconv"
	"strings"

	"armlink/protocol"
)

// Request is one command on its way to the device.
type Request struct {
	Command protocol.Command
	Payload []byte // Encoded command payload, nil for Stop/Home/GetPosition
}

// Payload is a decoded response body: either a numeric vector or text.
type Payload struct {
	Vector bool
	Values []float64 // Set when Vector is true
	Text   string    // Set when Vector is false
}

func (p Payload) String() string {
	if !p.Vector {
		return p.Text
	}
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Result is the outcome of one command.
//
//   - Device replied:     Success mirrors the device flag, Payload holds the decoded body.
//   - Local failure:      Success is false, Err is the transport/protocol/state error.
type Result struct {
	Command protocol.Command
	Success bool
	Message string
	Payload Payload
	Err     error
}

// Failed builds a Result for a command that never got a device reply.
func Failed(cmd protocol.Command, err error) *Result {
	return &Result{
		Command: cmd,
		Success: false,
		Message: fmt.Sprintf("%s failed: %v", cmd, err),
		Err:     err,
	}
}

// Point is a tool-point target in millimetres.
type Point struct {
	X, Y, Z float64
}

// Angles are the three joint angles, in degrees, used by MoveAngles.
type Angles struct {
	Alpha, Alpha1, Alpha2 float64
}

// Position is the device-reported position. Extra holds any values past x, y, z.
type Position struct {
	Point
	Extra []float64
}

// PositionFromValues interprets a vector reply. It needs at least three values.
func PositionFromValues(values []float64) (Position, bool) {
	if len(values) < 3 {
		return Position{}, false
	}
	pos := Position{Point: Point{X: values[0], Y: values[1], Z: values[2]}}
	if len(values) > 3 {
		pos.Extra = append([]float64(nil), values[3:]...)
	}
	return pos, true
}

func (p Position) String() string {
	s := fmt.Sprintf("x=%.3f y=%.3f z=%.3f", p.X, p.Y, p.Z)
	if len(p.Extra) > 0 {
		s += fmt.Sprintf(" extra=%v", p.Extra)
	}
	return s
}
