package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dreamware/kith/internal/config"
)

// TestNewLogger verifies console and file logger construction and level handling.
func TestNewLogger(t *testing.T) {
	t.Run("json to console", func(t *testing.T) {
		buf := new(bytes.Buffer)
		logger, err := newLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "kithd"}, zapcore.AddSync(buf))
		require.NoError(t, err)

		logger.Info("Store opened", zap.String("path", "/data"))
		logger.Debug("dropped")
		require.NoError(t, logger.Sync())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1, "debug is below the configured level")

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "kithd", entry["logger"])
		assert.Equal(t, "Store opened", entry["msg"])
		assert.Equal(t, "/data", entry["path"])
	})

	t.Run("console format", func(t *testing.T) {
		buf := new(bytes.Buffer)
		logger, err := newLogger(config.LoggerConfig{Level: "debug", Format: "console"}, zapcore.AddSync(buf))
		require.NoError(t, err)

		logger.Debug("Transaction committed")
		require.NoError(t, logger.Sync())
		assert.Contains(t, buf.String(), "Transaction committed")
		assert.Contains(t, buf.String(), "DEBUG")
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := newLogger(config.LoggerConfig{Level: "loud"}, zapcore.AddSync(new(bytes.Buffer)))
		assert.Error(t, err)
	})

	t.Run("rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kith.log")
		logger, err := newLogger(config.LoggerConfig{Level: "info", Format: "console", LogFile: path, MaxSize: 1}, zapcore.AddSync(new(bytes.Buffer)))
		require.NoError(t, err)

		logger.Warn("Truncating commit log at damaged frame")
		require.NoError(t, logger.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		assert.Equal(t, "WARN", entry["level"])
	})
}
