// Package codec encodes command payloads and decodes response payloads.
//
// Motion payloads are little-endian float64 values followed by a little-endian
// int32 duration in milliseconds. Two layouts exist in the field:
//
//	raw:    [f64 ...][i32]            e.g. MoveXYZ = 3*8 + 4 = 28 bytes
//	padded: [f64 ...][i32][0 ... 0]   zero-padded to a multiple of 8 (32 bytes)
//
// A client uses one layout for every motion command.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"armlink/message"
)

type Layout byte

const (
	LayoutRaw    Layout = 0
	LayoutPadded Layout = 1
)

func (l Layout) String() string {
	if l == LayoutPadded {
		return "padded"
	}
	return "raw"
}

// ParseLayout accepts "raw" or "padded" (case-insensitive). Empty means raw.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return LayoutRaw, nil
	case "padded":
		return LayoutPadded, nil
	default:
		return LayoutRaw, fmt.Errorf("codec: unknown payload layout %q", s)
	}
}

type Codec interface {
	Encode(values []float64, durationMs int32) []byte
	DecodeMotion(data []byte, n int) ([]float64, int32, error) // n = number of float64 values
	Layout() Layout
}

func GetCodec(layout Layout) Codec {
	if layout == LayoutPadded {
		return &PaddedCodec{}
	}

	return &RawCodec{}
}

// Decode interprets a response body. A length divisible by 8 is a vector of
// float64 values, anything else is text. The controller relies on this rule
// to tell the two apart, so it must not change.
func Decode(data []byte) message.Payload {
	if len(data)%8 != 0 {
		return message.Payload{Text: string(data)}
	}
	values := make([]float64, len(data)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}
	return message.Payload{Vector: true, Values: values}
}

// EncodeValues packs values as little-endian float64. The simulator uses it
// for position replies.
func EncodeValues(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], math.Float64bits(v))
	}
	return buf
}
