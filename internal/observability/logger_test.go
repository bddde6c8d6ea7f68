package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		logger, err := NewLogger("info", "json")
		require.NoError(t, err)
		defer func() { _ = logger.Sync() }()

		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("development console logger", func(t *testing.T) {
		logger, err := NewLogger("debug", "console")
		require.NoError(t, err)
		defer func() { _ = logger.Sync() }()

		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("empty format means json", func(t *testing.T) {
		logger, err := NewLogger("warn", "")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewLogger("loud", "json")
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := NewLogger("info", "xml")
		assert.Error(t, err)
	})
}
