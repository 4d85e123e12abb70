package mqtt

import "codeberg.org/odysseus/odytelem/internal/errors"

const (
	// Startup Errors
	ErrInvalidAddress   = errors.ErrInvalidAddress
	ErrSubscribeFailed  = errors.ErrorCode("mqtt_subscribe_failed")
	ErrConnectFailed    = errors.ErrorCode("mqtt_connect_failed")
	ErrInvalidQueue     = errors.ErrorCode("mqtt_invalid_queue")
	ErrInvalidTransport = errors.ErrorCode("mqtt_invalid_transport")

	// Runtime Errors
	ErrPublishFailed    = errors.ErrorCode("mqtt_publish_failed")
	ErrOperationTimeout = errors.ErrTimeout
	ErrNotConnected     = errors.ErrorCode("mqtt_not_connected")
)
