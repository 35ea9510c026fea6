package simulator

import (
	"fmt"
	"math"
	"sync"

	"armlink/codec"
	"armlink/message"
	"armlink/protocol"
)

// Limits is the envelope the firmware clamps targets into.
type Limits struct {
	X, Y, Z               [2]float64
	Alpha, Alpha1, Alpha2 [2]float64
}

func DefaultLimits() Limits {
	return Limits{
		X:      [2]float64{-5, 5},
		Y:      [2]float64{6, 18},
		Z:      [2]float64{13, 18},
		Alpha:  [2]float64{-180, 180},
		Alpha1: [2]float64{-180, 0},
		Alpha2: [2]float64{0, 180},
	}
}

// Arm is a simulated controller. Moves complete instantly; targets are clamped.
type Arm struct {
	mu      sync.Mutex
	codec   codec.Codec
	limits  Limits
	home    message.Point
	pos     message.Point
	angles  message.Angles
	posed   bool // Last move carried joint angles; GetPosition reports them
	history []protocol.Command
}

// NewArm returns an arm at its home pose expecting payloads in layout.
func NewArm(layout codec.Layout) *Arm {
	home := message.Point{X: 0, Y: 12, Z: 15}
	return &Arm{
		codec:  codec.GetCodec(layout),
		limits: DefaultLimits(),
		home:   home,
		pos:    home,
	}
}

func (a *Arm) ServeArm(req *protocol.Request) (*protocol.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, req.Command)

	switch req.Command {
	case protocol.CmdMoveXYZ:
		values, _, err := a.codec.DecodeMotion(req.Payload, 3)
		if err != nil {
			return reply(false, err.Error()), nil
		}
		a.moveTo(values)
		a.posed = false
		return reply(true, "Moved"), nil

	case protocol.CmdMoveAngles:
		values, _, err := a.codec.DecodeMotion(req.Payload, 6)
		if err != nil {
			return reply(false, err.Error()), nil
		}
		a.moveTo(values)
		a.angles = message.Angles{
			Alpha:  clamp(values[3], a.limits.Alpha),
			Alpha1: clamp(values[4], a.limits.Alpha1),
			Alpha2: clamp(values[5], a.limits.Alpha2),
		}
		a.posed = true
		return reply(true, "Moved"), nil

	case protocol.CmdStop:
		return reply(true, "Stopped"), nil

	case protocol.CmdGetPosition:
		values := []float64{a.pos.X, a.pos.Y, a.pos.Z}
		if a.posed {
			values = append(values, a.angles.Alpha, a.angles.Alpha1, a.angles.Alpha2)
		}
		return &protocol.Response{Success: true, Message: codec.EncodeValues(values)}, nil

	case protocol.CmdHome:
		a.pos = a.home
		a.angles = message.Angles{}
		a.posed = false
		return reply(true, "Homed"), nil

	default:
		return reply(false, fmt.Sprintf("unknown command %d", byte(req.Command))), nil
	}
}

// Position returns the current simulated position.
func (a *Arm) Position() message.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

// Angles returns the joint angles of the last MoveAngles.
func (a *Arm) Angles() message.Angles {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.angles
}

// History returns the commands received so far, in order.
func (a *Arm) History() []protocol.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]protocol.Command(nil), a.history...)
}

func (a *Arm) moveTo(values []float64) {
	a.pos = message.Point{
		X: clamp(values[0], a.limits.X),
		Y: clamp(values[1], a.limits.Y),
		Z: clamp(values[2], a.limits.Z),
	}
}

func clamp(v float64, r [2]float64) float64 {
	return math.Max(r[0], math.Min(r[1], v))
}

// reply builds a text response. The client reads any body whose length is a
// multiple of 8 as numbers, so text of such a length gets a trailing period.
func reply(success bool, text string) *protocol.Response {
	if len(text)%8 == 0 {
		text += "."
	}
	return &protocol.Response{Success: success, Message: []byte(text)}
}
