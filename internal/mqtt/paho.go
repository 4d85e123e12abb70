package mqtt

import (
	"context"
	"sync"
	"time"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"codeberg.org/odysseus/odytelem/internal/stats"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	eventBuffer          = 256
	disconnectQuiesceMS  = 250
	connectRetryInterval = 2 * time.Second
)

// PahoTransport is a Transport over an MQTT 3.1.1 connection. Paho delivers
// messages and connection changes through callbacks; they are turned into
// Events here so that the Processor can select on them.
type PahoTransport struct {
	client         paho.Client
	opts           ConnectionOptions
	log            logger.Logger
	mu             sync.RWMutex
	closed         bool
	events         chan Event
	closeOnce      sync.Once
	done           chan struct{}
	publishTimeout time.Duration
}

func newPahoTransport(opts ConnectionOptions) *PahoTransport {
	t := &PahoTransport{
		opts:           opts,
		log:            logger.For("mqtt"),
		events:         make(chan Event, eventBuffer),
		done:           make(chan struct{}),
		publishTimeout: orDefault(opts.PublishTimeout, DefaultPublishTimeout),
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.BrokerURL()).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanStart).
		SetKeepAlive(orDefault(opts.KeepAlive, DefaultKeepAlive)).
		SetConnectTimeout(orDefault(opts.ConnectTimeout, DefaultConnectTimeout)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetDefaultPublishHandler(t.onMessage).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(t.onConnectionLost)

	t.client = paho.NewClient(clientOpts)
	return t
}

// Dial connects to the broker and waits for the first connection to be
// established. Paho keeps retrying until ctx is cancelled.
func Dial(ctx context.Context, opts ConnectionOptions) (*PahoTransport, error) {
	errFactory := errors.New()

	t := newPahoTransport(opts)
	t.log.Info().
		Str("broker", opts.BrokerURL()).
		Str("client_id", opts.ClientID).
		Msg("Connecting to MQTT broker")

	if opts.TopicAliasMax > 0 {
		t.log.Debug().
			Uint16("topic_alias_max", opts.TopicAliasMax).
			Msg("Topic aliases are not available over MQTT 3.1.1, ignoring")
	}

	token := t.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			t.Close()
			return nil, errFactory.Wrap(ErrConnectFailed, err)
		}
	case <-ctx.Done():
		t.Close()
		return nil, errFactory.Wrap(ErrConnectFailed, ctx.Err())
	}

	return t, nil
}

func (t *PahoTransport) Subscribe(ctx context.Context, topic string, qos byte) error {
	errFactory := errors.New()

	// a nil callback routes messages to the default publish handler
	token := t.client.Subscribe(topic, qos, nil)
	if err := t.wait(ctx, token, orDefault(t.opts.ConnectTimeout, DefaultConnectTimeout)); err != nil {
		return errFactory.Wrap(ErrSubscribeFailed, err)
	}

	t.log.Info().Str("topic", topic).Uint8("qos", qos).Msg("Subscribed to topic")
	return nil
}

// Publish hands the message to paho and returns without waiting for the
// broker. The QoS handshake is watched in the background; a failure or a
// handshake that outlasts the publish timeout is reported as
// EventPublishFailed.
func (t *PahoTransport) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}
	if !t.client.IsConnectionOpen() {
		return errFactory.New(ErrNotConnected)
	}

	token := t.client.Publish(topic, qos, retained, payload)
	go t.watchPublish(topic, token)

	return nil
}

func (t *PahoTransport) watchPublish(topic string, token paho.Token) {
	timer := time.NewTimer(t.publishTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-token.Done():
		if token.Error() == nil {
			return
		}
		err = errors.New().Wrap(ErrPublishFailed, token.Error())
	case <-timer.C:
		err = errors.New().New(ErrOperationTimeout)
	case <-t.done:
		return
	}

	t.emit(Event{Kind: EventPublishFailed, Topic: topic, Err: err})
}

func (t *PahoTransport) Events() <-chan Event {
	return t.events
}

// Close disconnects and closes the event stream. It is safe to call more
// than once.
func (t *PahoTransport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.client.Disconnect(disconnectQuiesceMS)

		t.mu.Lock()
		t.closed = true
		close(t.events)
		t.mu.Unlock()

		t.log.Debug().Msg("MQTT transport closed")
	})
}

func (t *PahoTransport) wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New().New(ErrOperationTimeout)
	}
}

func (t *PahoTransport) onMessage(_ paho.Client, msg paho.Message) {
	t.emit(Event{
		Kind:    EventMessage,
		Topic:   msg.Topic(),
		Payload: msg.Payload(),
	})
}

func (t *PahoTransport) onConnect(_ paho.Client) {
	t.log.Info().Str("broker", t.opts.BrokerURL()).Msg("Connected to MQTT broker")
	t.emit(Event{Kind: EventConnected})
}

func (t *PahoTransport) onConnectionLost(_ paho.Client, err error) {
	t.log.Warn().Err(err).Msg("Lost connection to MQTT broker, reconnecting")
	t.emit(Event{Kind: EventConnectionLost, Err: err})
}

// emit never blocks: paho invokes handlers from its own goroutines and a
// stalled handler would hold up the acknowledgements of in-flight
// publishes.
func (t *PahoTransport) emit(ev Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}

	select {
	case t.events <- ev:
	default:
		stats.InboundEventsDropped.Inc()
		t.log.Warn().Str("event", ev.Kind.String()).Msg("Transport event buffer full, dropping event")
	}
}
