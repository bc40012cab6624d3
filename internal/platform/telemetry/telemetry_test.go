package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandererkills/internal/platform/config"
)

func TestParseLogLevelRecognizesKnownNames(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestInitializeWithTelemetryDisabledSkipsOTel(t *testing.T) {
	m := NewManager(config.TelemetryConfig{Enable: false, ServiceName: "test", LogLevel: "info"})

	require.NoError(t, m.Initialize(context.Background()))
	assert.NotNil(t, m.Logger())
	assert.Empty(t, m.shutdownFuncs, "no OTel providers should register shutdown funcs when disabled")

	assert.NoError(t, m.Shutdown(context.Background()))
}
