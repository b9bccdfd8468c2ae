package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/duelhub/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", Format: "json"}
	logger, err := NewLogger(cfg, "duelhub")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLoggerTo_JSONCarriesInstance(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLoggerTo(config.LoggingConfig{Level: "info", Format: "json"}, "hub-1", zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("room created", zap.String("room", "room-a-b"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hub-1", entry["instance"])
	assert.Equal(t, "room-a-b", entry["room"])
	assert.Equal(t, "room created", entry["msg"])
	assert.Contains(t, entry["ts"], "T", "ISO8601 timestamp")
}

func TestNewLoggerTo_ConsoleOmitsEmptyInstance(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLoggerTo(config.LoggingConfig{Level: "debug", Format: "console"}, "", zapcore.AddSync(&buf))
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "debug level must be enabled")

	logger.Debug("queued")
	assert.Contains(t, buf.String(), "queued")
	assert.NotContains(t, buf.String(), "instance")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := config.LoggingConfig{Level: "trace", Format: "json"}
	_, err := NewLogger(cfg, "duelhub")
	assert.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", Format: "xml"}
	_, err := NewLogger(cfg, "duelhub")
	assert.Error(t, err)
}

func TestNewLogger_LevelGate(t *testing.T) {
	cfg := config.LoggingConfig{Level: "warn", Format: "json"}
	logger, err := NewLogger(cfg, "duelhub")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel), "info must be filtered at warn level")
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
