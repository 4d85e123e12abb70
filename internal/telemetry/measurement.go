// Package telemetry holds the measurement value passed from the sampler to
// the processor, and the fixed table of topics and their units.
package telemetry

import (
	"fmt"

	"codeberg.org/odysseus/odytelem/internal/errors"
)

const (
	ErrUnknownTopic = errors.ErrorCode("telemetry_unknown_topic")
	ErrNoValues     = errors.ErrorCode("telemetry_no_values")
)

// Measurement is an immutable set of readings for one topic.
type Measurement struct {
	topic  Topic
	unit   string
	values []float32
}

// New builds a Measurement for a known topic. The values are copied.
func New(topic Topic, values ...float32) (Measurement, error) {
	errFactory := errors.New()

	if !topic.Known() {
		return Measurement{}, errFactory.WithData(ErrUnknownTopic, topic)
	}
	if len(values) == 0 {
		return Measurement{}, errFactory.WithData(ErrNoValues, topic)
	}

	return Measurement{
		topic:  topic,
		unit:   topic.Unit(),
		values: append([]float32(nil), values...),
	}, nil
}

// Must is New for call sites where topic and values are fixed.
func Must(topic Topic, values ...float32) Measurement {
	m, err := New(topic, values...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Measurement) Topic() Topic { return m.topic }
func (m Measurement) Unit() string { return m.unit }

// Values returns a copy of the readings.
func (m Measurement) Values() []float32 {
	return append([]float32(nil), m.values...)
}

// Len returns the number of readings without copying them.
func (m Measurement) Len() int { return len(m.values) }

func (m Measurement) String() string {
	return fmt.Sprintf("%s %v %s", m.topic, m.values, m.unit)
}
