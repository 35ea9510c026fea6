package simulator

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"armlink/codec"
	"armlink/protocol"
)

func startServer(t *testing.T, h Handler, opts ...Option) (*Server, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithLogger(zerolog.New(zerolog.NewTestWriter(t)))}, opts...)
	svr := NewServer(h, opts...)
	go svr.Serve(l)
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr, l.Addr().String()
}

func roundTrip(t *testing.T, conn net.Conn, cmd protocol.Command, payload []byte) *protocol.Response {
	t.Helper()
	if err := protocol.WriteRequest(conn, cmd, payload); err != nil {
		t.Fatalf("WriteRequest failed: %v", err)
	}
	resp, err := protocol.ReadResponse(conn, protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("ReadResponse failed: %v", err)
	}
	return resp
}

func TestArmMoveAndGetPosition(t *testing.T) {
	arm := NewArm(codec.LayoutRaw)
	_, addr := startServer(t, arm)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, protocol.CmdMoveXYZ, codec.GetCodec(codec.LayoutRaw).Encode([]float64{1, 10, 15}, 1000))
	if !resp.Success || string(resp.Message) != "Moved" {
		t.Fatalf("move reply: %+v", resp)
	}

	resp = roundTrip(t, conn, protocol.CmdGetPosition, nil)
	if len(resp.Message) != 24 {
		t.Fatalf("position reply length: got %d, want 24", len(resp.Message))
	}
	payload := codec.Decode(resp.Message)
	if !payload.Vector || payload.Values[0] != 1 || payload.Values[1] != 10 || payload.Values[2] != 15 {
		t.Fatalf("position: got %+v", payload)
	}
}

func TestArmClampsTargets(t *testing.T) {
	arm := NewArm(codec.LayoutPadded)
	resp, err := arm.ServeArm(&protocol.Request{
		Command: protocol.CmdMoveAngles,
		Payload: codec.GetCodec(codec.LayoutPadded).Encode([]float64{9, 2, 15, 270, 10, -5}, 500),
	})
	if err != nil || !resp.Success {
		t.Fatalf("move angles: %+v %v", resp, err)
	}
	pos := arm.Position()
	if pos.X != 5 || pos.Y != 6 || pos.Z != 15 {
		t.Errorf("position not clamped: %+v", pos)
	}
	angles := arm.Angles()
	if angles.Alpha != 180 || angles.Alpha1 != 0 || angles.Alpha2 != 0 {
		t.Errorf("angles not clamped: %+v", angles)
	}
}

func TestArmRejectsWrongLayout(t *testing.T) {
	arm := NewArm(codec.LayoutRaw)
	resp, _ := arm.ServeArm(&protocol.Request{
		Command: protocol.CmdMoveXYZ,
		Payload: codec.GetCodec(codec.LayoutPadded).Encode([]float64{0, 10, 15}, 500),
	})
	if resp.Success {
		t.Fatal("padded payload must be rejected by a raw-layout arm")
	}
	if len(resp.Message)%8 == 0 {
		t.Fatalf("text reply length %d would decode as a vector", len(resp.Message))
	}
}

func TestArmHomeAndUnknownCommand(t *testing.T) {
	arm := NewArm(codec.LayoutRaw)
	arm.ServeArm(&protocol.Request{Command: protocol.CmdMoveXYZ, Payload: codec.GetCodec(codec.LayoutRaw).Encode([]float64{3, 7, 14}, 1)})

	resp, _ := arm.ServeArm(&protocol.Request{Command: protocol.CmdHome})
	if !resp.Success || arm.Position() != arm.home {
		t.Fatalf("home failed: %+v at %+v", resp, arm.Position())
	}

	resp, _ = arm.ServeArm(&protocol.Request{Command: protocol.Command(42)})
	if resp.Success {
		t.Fatal("unknown command must fail")
	}
	if got := len(arm.History()); got != 3 {
		t.Fatalf("history length: got %d, want 3", got)
	}
}

func TestHangUpClosesConnection(t *testing.T) {
	_, addr := startServer(t, HandlerFunc(func(req *protocol.Request) (*protocol.Response, error) {
		return nil, ErrHangUp
	}))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, protocol.CmdStop, nil); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = protocol.ReadResponse(conn, protocol.DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after hang up, got %v", err)
	}
}

func TestFramesMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	svr, addr := startServer(t, NewArm(codec.LayoutRaw), WithRegisterer(reg))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	roundTrip(t, conn, protocol.CmdStop, nil)
	roundTrip(t, conn, protocol.CmdStop, nil)

	if got := testutil.ToFloat64(svr.frames.WithLabelValues("Stop", "true")); got != 2 {
		t.Fatalf("frames_total{Stop,true}: got %v, want 2", got)
	}
}

func TestShutdownClosesOpenConnections(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	svr := NewServer(NewArm(codec.LayoutRaw), WithLogger(zerolog.Nop()))
	served := make(chan error, 1)
	go func() { served <- svr.Serve(l) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	roundTrip(t, conn, protocol.CmdHome, nil)

	if err := svr.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := <-served; err != nil {
		t.Fatalf("Serve returned %v after shutdown", err)
	}
}

func TestArmReportsAnglesAfterMoveAngles(t *testing.T) {
	arm := NewArm(codec.LayoutRaw)
	cdc := codec.GetCodec(codec.LayoutRaw)
	arm.ServeArm(&protocol.Request{Command: protocol.CmdMoveAngles, Payload: cdc.Encode([]float64{1, 10, 15, 90, -45, 30}, 500)})

	resp, _ := arm.ServeArm(&protocol.Request{Command: protocol.CmdGetPosition})
	got := codec.Decode(resp.Message)
	want := []float64{1, 10, 15, 90, -45, 30}
	if !got.Vector || len(got.Values) != len(want) {
		t.Fatalf("position reply: %+v", got)
	}
	for i := range want {
		if got.Values[i] != want[i] {
			t.Fatalf("value %d: got %v, want %v", i, got.Values[i], want[i])
		}
	}

	arm.ServeArm(&protocol.Request{Command: protocol.CmdHome})
	resp, _ = arm.ServeArm(&protocol.Request{Command: protocol.CmdGetPosition})
	if len(resp.Message) != 24 {
		t.Fatalf("after home: got %d bytes, want 24", len(resp.Message))
	}
}

func TestConnectionAcceptedDuringShutdownIsClosed(t *testing.T) {
	svr := NewServer(NewArm(codec.LayoutRaw), WithLogger(zerolog.Nop()))
	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// A connection that raced past Accept after Shutdown began
	late, peer := net.Pipe()
	defer peer.Close()
	if svr.track(late, true) {
		t.Fatal("a connection must not be tracked after shutdown")
	}
	late.Close()

	done := make(chan error, 1)
	go func() { done <- svr.Shutdown(time.Second) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Shutdown waited on an untracked connection: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown hung")
	}
}
