package mqtt

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"codeberg.org/odysseus/odytelem/internal/cell"
	"codeberg.org/odysseus/odytelem/internal/errors"
)

// QoS levels
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
	QoSExactlyOnce byte = 2
)

const (
	DefaultKeepAlive      = 20 * time.Second
	DefaultConnectTimeout = 3 * time.Second
	DefaultPublishTimeout = 5 * time.Second
	DefaultTopicAliasMax  = 600

	clientIDPrefix = "Ody-"
)

// Inbound names the topic to subscribe to and the cell its first value is
// stored in.
type Inbound struct {
	Topic string
	Cell  *cell.Cell
}

// ProcessorOptions are static settings for a Processor and its connection.
type ProcessorOptions struct {
	// Broker is the broker address as host:port.
	Broker         string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	TopicAliasMax  uint16
	// Inbound is nil when no inbound topic is configured.
	Inbound *Inbound
}

// ConnectionOptions are the transport-level settings handed back to the
// caller, which establishes the connection.
type ConnectionOptions struct {
	Host           string
	Port           uint16
	ClientID       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	// CleanStart is false so that the session, including the inbound
	// subscription, survives reconnects.
	CleanStart    bool
	TopicAliasMax uint16
}

// BrokerURL returns the address in the scheme form paho expects.
func (o ConnectionOptions) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// ParseBroker splits a host:port broker address.
func ParseBroker(addr string) (string, uint16, error) {
	errFactory := errors.New()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errFactory.Wrap(ErrInvalidAddress, err)
	}
	if host == "" {
		return "", 0, errFactory.WithMessage(ErrInvalidAddress, fmt.Sprintf("missing host in %q", addr))
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, errFactory.WithMessage(ErrInvalidAddress, fmt.Sprintf("invalid port in %q", addr))
	}

	return host, uint16(port), nil
}

// ClientID derives a connection identifier from the start time so that
// every process start uses a distinct one.
func ClientID(start time.Time) string {
	return clientIDPrefix + strconv.FormatInt(start.UnixMilli(), 10)
}
