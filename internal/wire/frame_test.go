package wire_test

import (
	"math"
	"testing"
	"time"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/telemetry"
	"codeberg.org/odysseus/odytelem/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRoundTrip(t *testing.T) {
	at := time.UnixMicro(1_700_000_000_123_456)
	measurements := []telemetry.Measurement{
		telemetry.Must(telemetry.TopicCPUTemp, 47.25),
		telemetry.Must(telemetry.TopicCPUUsage, 0),
		telemetry.Must(telemetry.TopicBrokerCPUUsage, 312.5),
		telemetry.Must(telemetry.TopicMemAvailable, 512, -1, float32(math.Inf(1)), math.SmallestNonzeroFloat32),
	}

	for _, m := range measurements {
		t.Run(string(m.Topic()), func(t *testing.T) {
			frame := wire.FromMeasurement(m, at)
			b, err := frame.Marshal()
			require.NoError(t, err)

			got, err := wire.Unmarshal(b)
			require.NoError(t, err)
			assert.Equal(t, m.Unit(), got.Unit)
			assert.Equal(t, m.Values(), got.Values)
			assert.Equal(t, uint64(1_700_000_000_123_456), got.TimeUS)
		})
	}
}

func TestTimestampsAreNonDecreasing(t *testing.T) {
	m := telemetry.Must(telemetry.TopicCPUUsage, 1)
	base := time.Unix(1_700_000_000, 0)

	var last uint64
	for i := 0; i < 5; i++ {
		b, err := wire.FromMeasurement(m, base.Add(time.Duration(i)*time.Millisecond)).Marshal()
		require.NoError(t, err)
		f, err := wire.Unmarshal(b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.TimeUS, last)
		last = f.TimeUS
	}
}

func TestMarshalLayout(t *testing.T) {
	b, err := wire.Frame{Unit: "V", Values: []float32{3.7}, TimeUS: 1234}.Marshal()
	require.NoError(t, err)

	want := []byte{0x12, 0x01, 'V', 0x18, 0xd2, 0x09, 0x22, 0x04}
	want = protowire.AppendFixed32(want, math.Float32bits(3.7))
	assert.Equal(t, want, b)
}

func TestMarshalOmitsDefaults(t *testing.T) {
	b, err := wire.Frame{}.Marshal()
	require.NoError(t, err)
	assert.Empty(t, b)

	f, err := wire.Unmarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, float32(0), f.First())
}

func TestUnmarshalAcceptsUnpackedValuesAndSkipsUnknownFields(t *testing.T) {
	var b []byte
	// reserved field 1 from the previous schema revision
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(9))
	b = protowire.AppendTag(b, 4, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(1.5))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "knot")
	b = protowire.AppendTag(b, 4, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(2.5))
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	f, err := wire.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, "knot", f.Unit)
	assert.Equal(t, []float32{1.5, 2.5}, f.Values)
	assert.Equal(t, float32(1.5), f.First())
}

func TestUnmarshalRejectsMalformedInput(t *testing.T) {
	valid, err := wire.Frame{Unit: "V", Values: []float32{3.7}, TimeUS: 1234}.Marshal()
	require.NoError(t, err)

	tests := map[string][]byte{
		"truncated":         valid[:len(valid)-1],
		"field zero":        {0x00},
		"unterminated tag":  {0xff, 0xff, 0xff},
		"ragged packed":     {0x22, 0x03, 0x01, 0x02, 0x03},
		"invalid utf8 unit": {0x12, 0x01, 0xff},
		"plain text":        []byte("hello, broker"),
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := wire.Unmarshal(payload)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, wire.ErrDecode))
		})
	}
}

func TestMarshalRejectsInvalidUnit(t *testing.T) {
	_, err := wire.Frame{Unit: string([]byte{0xff})}.Marshal()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, wire.ErrEncode))
}
