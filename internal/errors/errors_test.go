package errors_test

import (
	"fmt"
	"io"
	"testing"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid broker address", f.New(errors.ErrInvalidAddress).Error())
	assert.Equal(t, "Operation timed out: EOF", f.Wrap(errors.ErrTimeout, io.EOF).Error())
	assert.Equal(t, "port out of range", f.WithMessage(errors.ErrInvalidAddress, "port out of range").Error())
	assert.Equal(t, "Invalid configuration: 42", f.WithData(errors.ErrInvalidConfig, 42).Error())
	assert.Equal(t, "mqtt_not_connected", f.New(errors.ErrorCode("mqtt_not_connected")).Error())
}

func TestWithDataKeepsCodeAndCause(t *testing.T) {
	err := errors.New().Wrap(errors.ErrOperationFailed, io.EOF).WithData("journal")

	assert.Equal(t, errors.ErrOperationFailed, err.Code())
	assert.Equal(t, "journal", err.GetData())
	assert.ErrorIs(t, err, io.EOF)
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrResourceNotFound)
	outer := f.Wrap(errors.ErrInitFailed, fmt.Errorf("open sensor: %w", inner))

	assert.True(t, errors.HasCode(outer, errors.ErrInitFailed))
	assert.True(t, errors.HasCode(outer, errors.ErrResourceNotFound))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(io.EOF, errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
}
