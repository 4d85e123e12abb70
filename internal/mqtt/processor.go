// Package mqtt owns the broker connection: it publishes queued measurements
// and stores the inbound signal.
package mqtt

import (
	"context"

	"codeberg.org/odysseus/odytelem/internal/clock"
	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/journal"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"codeberg.org/odysseus/odytelem/internal/stats"
	"codeberg.org/odysseus/odytelem/internal/telemetry"
	"codeberg.org/odysseus/odytelem/internal/wire"
)

// Processor is the single owner of the broker connection. Cancellation,
// inbound events and outbound measurements are served from one loop, so
// the transport is never used from two goroutines.
type Processor struct {
	queue   <-chan telemetry.Measurement
	inbound *Inbound
	clock   clock.Clock
	journal journal.Journal
	log     logger.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithClock sets the clock used to stamp outbound frames.
func WithClock(c clock.Clock) ProcessorOption {
	return func(p *Processor) {
		p.clock = c
	}
}

// WithJournal records every successful publish in j.
func WithJournal(j journal.Journal) ProcessorOption {
	return func(p *Processor) {
		p.journal = j
	}
}

// NewProcessor splits opts into the connection settings the caller dials
// with and the state the Processor keeps. A malformed broker address is
// returned as an error.
func NewProcessor(queue <-chan telemetry.Measurement, opts ProcessorOptions, options ...ProcessorOption) (*Processor, ConnectionOptions, error) {
	errFactory := errors.New()

	if queue == nil {
		return nil, ConnectionOptions{}, errFactory.New(ErrInvalidQueue)
	}

	host, port, err := ParseBroker(opts.Broker)
	if err != nil {
		return nil, ConnectionOptions{}, err
	}

	p := &Processor{
		queue:   queue,
		inbound: opts.Inbound,
		clock:   clock.Real(),
		journal: journal.Noop(),
		log:     logger.For("processor"),
	}
	for _, option := range options {
		option(p)
	}

	conn := ConnectionOptions{
		Host:           host,
		Port:           port,
		ClientID:       ClientID(p.clock.Now()),
		KeepAlive:      orDefault(opts.KeepAlive, DefaultKeepAlive),
		ConnectTimeout: orDefault(opts.ConnectTimeout, DefaultConnectTimeout),
		PublishTimeout: orDefault(opts.PublishTimeout, DefaultPublishTimeout),
		CleanStart:     false,
		TopicAliasMax:  opts.TopicAliasMax,
	}
	if conn.TopicAliasMax == 0 {
		conn.TopicAliasMax = DefaultTopicAliasMax
	}

	return p, conn, nil
}

// Process subscribes to the inbound topic, if any, and then serves the
// connection until ctx is cancelled. Only a failed subscription is
// returned as an error; every runtime failure is logged and skipped.
func (p *Processor) Process(ctx context.Context, t Transport) error {
	errFactory := errors.New()

	if t == nil {
		return errFactory.New(ErrInvalidTransport)
	}

	if p.inbound != nil {
		p.log.Debug().Str("topic", p.inbound.Topic).Msg("Subscribing to inbound topic")
		if err := t.Subscribe(ctx, p.inbound.Topic, QoSExactlyOnce); err != nil {
			return errFactory.Wrap(ErrSubscribeFailed, err)
		}
	}

	queue := p.queue
	events := t.Events()

	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Msg("Shutting down MQTT processor")
			return nil

		case ev, ok := <-events:
			if !ok {
				p.log.Warn().Msg("Transport event stream closed, inbound disabled")
				events = nil
				continue
			}
			p.handleEvent(ev)

		case m, ok := <-queue:
			if !ok {
				// a nil channel never becomes ready, so only cancellation and
				// inbound events remain
				p.log.Info().Msg("Outbound queue closed, publishing disabled")
				queue = nil
				continue
			}
			p.publish(ctx, t, m)
		}
	}
}

func (p *Processor) handleEvent(ev Event) {
	switch ev.Kind {
	case EventMessage:
		frame, err := wire.Unmarshal(ev.Payload)
		if err != nil {
			stats.InboundDecodeFailures.Inc()
			p.log.Warn().Err(err).Str("topic", ev.Topic).Msg("Received unparsable MQTT message")
			return
		}
		stats.InboundFrames.Inc()

		if p.inbound == nil {
			return
		}
		p.inbound.Cell.Store(frame.First())
		p.log.Trace().Str("topic", ev.Topic).Float32("value", frame.First()).Msg("Inbound signal updated")

	case EventPublishFailed:
		stats.MessagesDropped.WithLabelValues(stats.ReasonPublish).Inc()
		p.log.Warn().Err(ev.Err).Str("topic", ev.Topic).Msg("Failed to send MQTT message")

	case EventConnectionLost, EventError:
		stats.TransportErrors.Inc()
		p.log.Trace().Err(ev.Err).Str("event", ev.Kind.String()).Msg("Received transport error")

	default:
		p.log.Debug().Str("event", ev.Kind.String()).Msg("Ignoring transport event")
	}
}

func (p *Processor) publish(ctx context.Context, t Transport, m telemetry.Measurement) {
	frame := wire.FromMeasurement(m, p.clock.Now())
	p.log.Trace().Str("topic", m.Topic().String()).Interface("values", frame.Values).Msg("Sending")

	payload, err := frame.Marshal()
	if err != nil {
		stats.MessagesDropped.WithLabelValues(stats.ReasonEncode).Inc()
		p.log.Warn().Err(err).Str("topic", m.Topic().String()).Msg("Failed to serialize message")
		return
	}

	// Publish only hands the message over; a failed handshake comes back
	// later as EventPublishFailed
	if err := t.Publish(ctx, m.Topic().String(), QoSExactlyOnce, false, payload); err != nil {
		if ctx.Err() != nil {
			return
		}
		stats.MessagesDropped.WithLabelValues(stats.ReasonPublish).Inc()
		p.log.Warn().Err(err).Str("topic", m.Topic().String()).Msg("Failed to send MQTT message")
		return
	}
	stats.MessagesPublished.WithLabelValues(m.Topic().String()).Inc()

	if err := p.journal.Record(m.Topic().String(), frame, payload); err != nil {
		p.log.Warn().Err(err).Str("topic", m.Topic().String()).Msg("Failed to journal published message")
	}
}

func orDefault[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
