package logging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultsToInfoOnInvalidLevel(t *testing.T) {
	logger := New(Options{Level: "not-a-level"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNew_ParsesValidLevel(t *testing.T) {
	logger := New(Options{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestWithCorrelationID_AttachesToContextAndLogger(t *testing.T) {
	base := zerolog.Nop()
	ctx, _ := WithCorrelationID(context.Background(), base)
	id := CorrelationID(ctx)
	assert.NotEmpty(t, id)
}

func TestCorrelationID_EmptyWhenUnset(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
}
