package codec

import (
	"encoding/binary"

	"armlink/protocol"
)

type RawCodec struct{}

func (c *RawCodec) Encode(values []float64, durationMs int32) []byte {
	buf := make([]byte, len(values)*8+4)
	copy(buf, EncodeValues(values))
	binary.LittleEndian.PutUint32(buf[len(values)*8:], uint32(durationMs))
	return buf
}

func (c *RawCodec) DecodeMotion(data []byte, n int) ([]float64, int32, error) {
	want := n*8 + 4
	if len(data) != want {
		return nil, 0, &protocol.ProtocolError{Declared: want, Got: len(data), Reason: "raw motion payload size mismatch"}
	}
	values, duration := decodeMotion(data, n)
	return values, duration, nil
}

func (c *RawCodec) Layout() Layout {
	return LayoutRaw
}

// PaddedCodec appends zero bytes so the payload can be read back as whole float64 words.
type PaddedCodec struct{}

func (c *PaddedCodec) Encode(values []float64, durationMs int32) []byte {
	raw := (&RawCodec{}).Encode(values, durationMs)
	buf := make([]byte, padTo8(len(raw)))
	copy(buf, raw)
	return buf
}

func (c *PaddedCodec) DecodeMotion(data []byte, n int) ([]float64, int32, error) {
	want := padTo8(n*8 + 4)
	if len(data) != want {
		return nil, 0, &protocol.ProtocolError{Declared: want, Got: len(data), Reason: "padded motion payload size mismatch"}
	}
	values, duration := decodeMotion(data, n)
	return values, duration, nil
}

func (c *PaddedCodec) Layout() Layout {
	return LayoutPadded
}

func decodeMotion(data []byte, n int) ([]float64, int32) {
	values := Decode(data[:n*8]).Values
	duration := int32(binary.LittleEndian.Uint32(data[n*8 : n*8+4]))
	return values, duration
}

func padTo8(n int) int {
	return (n + 7) &^ 7
}
