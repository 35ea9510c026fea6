package message

import (
	"errors"
	"strings"
	"testing"

	"armlink/protocol"
)

func TestPositionFromValues(t *testing.T) {
	pos, ok := PositionFromValues([]float64{1, 10, 15})
	if !ok {
		t.Fatal("expected three values to form a position")
	}
	if pos.X != 1 || pos.Y != 10 || pos.Z != 15 || pos.Extra != nil {
		t.Fatalf("got %+v", pos)
	}

	pos, ok = PositionFromValues([]float64{1, 2, 3, 45, -90, 90})
	if !ok || len(pos.Extra) != 3 || pos.Extra[1] != -90 {
		t.Fatalf("got %+v ok=%v", pos, ok)
	}

	if _, ok := PositionFromValues([]float64{1, 2}); ok {
		t.Fatal("two values must not form a position")
	}
}

func TestPayloadString(t *testing.T) {
	if got := (Payload{Vector: true, Values: []float64{1.5, -2}}).String(); got != "[1.5, -2]" {
		t.Errorf("vector: got %q", got)
	}
	if got := (Payload{Text: "OK"}).String(); got != "OK" {
		t.Errorf("text: got %q", got)
	}
}

func TestFailedCarriesError(t *testing.T) {
	cause := errors.New("connection reset")
	res := Failed(protocol.CmdStop, cause)

	if res.Success {
		t.Fatal("Failed result must not be successful")
	}
	if !errors.Is(res.Err, cause) {
		t.Errorf("Err: got %v", res.Err)
	}
	if !strings.Contains(res.Message, "Stop") || !strings.Contains(res.Message, "connection reset") {
		t.Errorf("Message: got %q", res.Message)
	}
}
