package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerDefaults(t *testing.T) {
	t.Parallel()

	// Empty settings are what byor uses before any config file is read.
	logger, err := NewLogger("", "")
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck

	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerJSONFormat(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("debug", "json")
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck

	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := NewLogger("loud", "console")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid log level")
}
