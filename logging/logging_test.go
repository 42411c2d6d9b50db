package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("cached", Config{Level: "warn", Format: "console"})
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewDefaults(t *testing.T) {
	logger, err := New("cached", Config{})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("cached", Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New("cached", Config{Format: "xml"})
	assert.Error(t, err)
}
