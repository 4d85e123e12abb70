// Package wire encodes measurements into the broker payload format.
//
// The payload is the protobuf message serverdata.v2.ServerData:
//
//	message ServerData {
//	  reserved 1;
//	  string unit = 2;
//	  uint64 time_us = 3;
//	  repeated float values = 4;
//	}
//
// It is encoded field by field with protowire so that no generated code is
// needed for a three-field schema.
package wire

import (
	"math"
	"time"
	"unicode/utf8"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/telemetry"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldUnit   protowire.Number = 2
	fieldTimeUS protowire.Number = 3
	fieldValues protowire.Number = 4
)

const (
	ErrEncode = errors.ErrorCode("wire_encode_failed")
	ErrDecode = errors.ErrorCode("wire_decode_failed")
)

// Frame is the on-the-wire form of a measurement.
type Frame struct {
	Unit   string
	Values []float32
	TimeUS uint64
}

// FromMeasurement builds a frame stamped with the given capture time.
func FromMeasurement(m telemetry.Measurement, at time.Time) Frame {
	return Frame{
		Unit:   m.Unit(),
		Values: m.Values(),
		TimeUS: uint64(at.UnixMicro()),
	}
}

// First returns the first value, or 0 when the frame carries none.
func (f Frame) First() float32 {
	if len(f.Values) == 0 {
		return 0
	}
	return f.Values[0]
}

// Marshal encodes the frame. Default values are omitted as proto3 does.
func (f Frame) Marshal() ([]byte, error) {
	if !utf8.ValidString(f.Unit) {
		return nil, errors.New().WithMessage(ErrEncode, "unit is not valid UTF-8")
	}

	b := make([]byte, 0, f.size())
	if f.Unit != "" {
		b = protowire.AppendTag(b, fieldUnit, protowire.BytesType)
		b = protowire.AppendString(b, f.Unit)
	}
	if f.TimeUS != 0 {
		b = protowire.AppendTag(b, fieldTimeUS, protowire.VarintType)
		b = protowire.AppendVarint(b, f.TimeUS)
	}
	if len(f.Values) > 0 {
		b = protowire.AppendTag(b, fieldValues, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(4*len(f.Values)))
		for _, v := range f.Values {
			b = protowire.AppendFixed32(b, math.Float32bits(v))
		}
	}

	return b, nil
}

func (f Frame) size() int {
	n := 0
	if f.Unit != "" {
		n += protowire.SizeTag(fieldUnit) + protowire.SizeBytes(len(f.Unit))
	}
	if f.TimeUS != 0 {
		n += protowire.SizeTag(fieldTimeUS) + protowire.SizeVarint(f.TimeUS)
	}
	if len(f.Values) > 0 {
		n += protowire.SizeTag(fieldValues) + protowire.SizeBytes(4*len(f.Values))
	}
	return n
}

// Unmarshal decodes a payload. Unknown fields are skipped; values are
// accepted both packed and unpacked.
func Unmarshal(b []byte) (Frame, error) {
	var f Frame

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, decodeError(n)
		}
		b = b[n:]

		switch {
		case num == fieldUnit && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return Frame{}, decodeError(n)
			}
			if !utf8.ValidString(s) {
				return Frame{}, errors.New().WithMessage(ErrDecode, "unit is not valid UTF-8")
			}
			f.Unit = s
			b = b[n:]

		case num == fieldTimeUS && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, decodeError(n)
			}
			f.TimeUS = v
			b = b[n:]

		case num == fieldValues && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, decodeError(n)
			}
			if len(packed)%4 != 0 {
				return Frame{}, errors.New().WithMessage(ErrDecode, "packed values length is not a multiple of 4")
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeFixed32(packed)
				if m < 0 {
					return Frame{}, decodeError(m)
				}
				f.Values = append(f.Values, math.Float32frombits(v))
				packed = packed[m:]
			}
			b = b[n:]

		case num == fieldValues && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return Frame{}, decodeError(n)
			}
			f.Values = append(f.Values, math.Float32frombits(v))
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, decodeError(n)
			}
			b = b[n:]
		}
	}

	return f, nil
}

func decodeError(n int) error {
	return errors.New().Wrap(ErrDecode, protowire.ParseError(n))
}
