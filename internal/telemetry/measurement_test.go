package telemetry_test

import (
	"testing"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPairsUnitWithTopic(t *testing.T) {
	tests := []struct {
		topic telemetry.Topic
		unit  string
	}{
		{telemetry.TopicCPUTemp, "celsius"},
		{telemetry.TopicCPUUsage, "%"},
		{telemetry.TopicBrokerCPUUsage, "%"},
		{telemetry.TopicMemAvailable, "MB"},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic), func(t *testing.T) {
			m, err := telemetry.New(tt.topic, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.topic, m.Topic())
			assert.Equal(t, tt.unit, m.Unit())
		})
	}
	assert.Len(t, telemetry.Topics(), len(tests))
}

func TestNewRejectsUnknownTopicAndEmptyValues(t *testing.T) {
	_, err := telemetry.New("TPU/OnBoard/Nope", 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrUnknownTopic))

	_, err = telemetry.New(telemetry.TopicMemAvailable)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrNoValues))
}

func TestMeasurementIsNotMutatedThroughValues(t *testing.T) {
	in := []float32{1, 2}
	m := telemetry.Must(telemetry.TopicCPUUsage, in...)
	in[0] = 99

	out := m.Values()
	out[1] = 42

	assert.Equal(t, []float32{1, 2}, m.Values())
	assert.Equal(t, 2, m.Len())
}
