package mqtt

import "context"

// EventKind tags what a transport Event carries.
type EventKind int

const (
	// EventMessage carries an inbound publish.
	EventMessage EventKind = iota
	// EventConnected reports a (re)established connection.
	EventConnected
	// EventConnectionLost reports a dropped connection; the transport
	// reconnects on its own.
	EventConnectionLost
	// EventPublishFailed reports a publish whose delivery handshake failed
	// or timed out after Publish had accepted it. Topic names the message.
	EventPublishFailed
	// EventError reports a transport-level failure not tied to a publish.
	// PahoTransport has none to report: paho surfaces connection failures
	// through its connection-lost handler, delivered as EventConnectionLost.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConnected:
		return "connected"
	case EventConnectionLost:
		return "connection_lost"
	case EventPublishFailed:
		return "publish_failed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one inbound occurrence on the transport.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error
}

// Transport is the broker connection as seen by the Processor. Reconnection
// is the transport's responsibility. Publish must not wait for the broker's
// acknowledgement: it returns once the message is accepted, and a later
// delivery failure is reported as EventPublishFailed.
type Transport interface {
	Subscribe(ctx context.Context, topic string, qos byte) error
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	// Events delivers inbound events. The channel is closed when the
	// transport is closed.
	Events() <-chan Event
}
