// Package protocol implements the binary frame protocol spoken by the arm controller.
//
// Every exchange is one request frame followed by one response frame. There are
// no sequence numbers, so a connection carries at most one outstanding request.
//
// Request frame:
//
//	0     1            5
//	┌─────┬────────────┬──────────────────┐
//	│ cmd │ payloadLen │   payload ...    │
//	│ u8  │ int32 LE   │ payloadLen bytes │
//	└─────┴────────────┴──────────────────┘
//
// Response frame:
//
//	0     1            5
//	┌─────┬────────────┬──────────────────┐
//	│ ok  │  msgLen    │   message ...    │
//	│ u8  │ int32 LE   │  msgLen bytes    │
//	└─────┴────────────┴──────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderSize  int = 5 // 1 (cmd or success flag) + 4 (length)
	DefaultPort int = 5000
)

// Command identifies the operation carried by a request frame.
type Command byte

const (
	CmdMoveXYZ     Command = 1 // Move the tool point to (x, y, z)
	CmdMoveAngles  Command = 2 // Move with explicit joint angles
	CmdStop        Command = 3 // Halt the current motion
	CmdGetPosition Command = 4 // Query the current position
	CmdHome        Command = 5 // Return to the home pose
)

func (c Command) String() string {
	switch c {
	case CmdMoveXYZ:
		return "MoveXYZ"
	case CmdMoveAngles:
		return "MoveAngles"
	case CmdStop:
		return "Stop"
	case CmdGetPosition:
		return "GetPosition"
	case CmdHome:
		return "Home"
	default:
		return fmt.Sprintf("Command(%d)", byte(c))
	}
}

// Valid reports whether c is one of the known command codes.
func (c Command) Valid() bool {
	return c >= CmdMoveXYZ && c <= CmdHome
}

// Limits bounds how much memory a single frame may claim. A zero value means
// DefaultLimits, never unlimited.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 1 << 20}
}

// ProtocolError reports a frame whose length field cannot be honoured.
type ProtocolError struct {
	Declared int    // Length announced by the header
	Got      int    // Bytes actually available, -1 when not applicable
	Reason   string
}

func (e *ProtocolError) Error() string {
	if e.Got >= 0 {
		return fmt.Sprintf("protocol: %s (declared %d bytes, got %d)", e.Reason, e.Declared, e.Got)
	}
	return fmt.Sprintf("protocol: %s (declared %d bytes)", e.Reason, e.Declared)
}

// Request is a decoded request frame.
type Request struct {
	Command Command
	Payload []byte
}

// Response is a decoded response frame.
type Response struct {
	Success bool
	Message []byte
}

// EncodeRequest builds a complete request frame.
func EncodeRequest(cmd Command, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(cmd)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(int32(len(payload))))
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeResponse builds a complete response frame.
func EncodeResponse(success bool, message []byte) []byte {
	buf := make([]byte, HeaderSize+len(message))
	if success {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], uint32(int32(len(message))))
	copy(buf[HeaderSize:], message)
	return buf
}

// ParseLength decodes a 4-byte little-endian signed length and checks it against limits.
func ParseLength(b []byte, limits Limits) (int, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("protocol: length field must be 4 bytes, got %d", len(b))
	}
	n := int(int32(binary.LittleEndian.Uint32(b)))
	if n < 0 {
		return 0, &ProtocolError{Declared: n, Got: -1, Reason: "negative length"}
	}
	if limits.MaxPayloadBytes <= 0 {
		limits = DefaultLimits()
	}
	if n > limits.MaxPayloadBytes {
		return 0, &ProtocolError{Declared: n, Got: -1, Reason: "length exceeds limit"}
	}
	return n, nil
}

// ParseResponseHeader splits the 5-byte response header into its success flag and body length.
func ParseResponseHeader(b []byte, limits Limits) (bool, int, error) {
	if len(b) != HeaderSize {
		return false, 0, fmt.Errorf("protocol: response header must be %d bytes, got %d", HeaderSize, len(b))
	}
	n, err := ParseLength(b[1:5], limits)
	if err != nil {
		return false, 0, err
	}
	return b[0] != 0, n, nil
}

// WriteRequest writes a request frame to w in a single Write call.
func WriteRequest(w io.Writer, cmd Command, payload []byte) error {
	_, err := w.Write(EncodeRequest(cmd, payload))
	return err
}

// WriteResponse writes a response frame to w in a single Write call.
func WriteResponse(w io.Writer, resp *Response) error {
	_, err := w.Write(EncodeResponse(resp.Success, resp.Message))
	return err
}

// ReadRequest reads one request frame. The simulator is its only reader.
func ReadRequest(r io.Reader, limits Limits) (*Request, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n, err := ParseLength(header[1:5], limits)
	if err != nil {
		return nil, err
	}
	body, err := readBody(r, n)
	if err != nil {
		return nil, err
	}
	return &Request{Command: Command(header[0]), Payload: body}, nil
}

// ReadResponse reads one response frame.
func ReadResponse(r io.Reader, limits Limits) (*Response, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	ok, n, err := ParseResponseHeader(header, limits)
	if err != nil {
		return nil, err
	}
	body, err := readBody(r, n)
	if err != nil {
		return nil, err
	}
	return &Response{Success: ok, Message: body}, nil
}

// readBody reads exactly n bytes; a stream that ends early is a ProtocolError.
func readBody(r io.Reader, n int) ([]byte, error) {
	body := make([]byte, n)
	got, err := io.ReadFull(r, body)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || (errors.Is(err, io.EOF) && n > 0) {
			return nil, &ProtocolError{Declared: n, Got: got, Reason: "truncated frame"}
		}
		return nil, err
	}
	return body, nil
}
