package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unboundedsystems/adapt/internal/reqid"
)

func TestLevels(t *testing.T) {
	log, logs := NewObserverLogger("debug")
	log.Debug("d")
	log.Info("i", zap.String("k", "v"))
	log.Warn("w")
	log.Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel},
		[]zapcore.Level{entries[0].Level, entries[1].Level, entries[2].Level, entries[3].Level})
	require.Equal(t, map[string]any{"k": "v"}, entries[1].ContextMap())
}

func TestWithContextAddsRequestID(t *testing.T) {
	log, logs := NewObserverLogger("info")
	ctx, id := reqid.NewContext(context.Background())

	log.InfoWithContext(ctx, "with id")
	log.InfoWithContext(context.Background(), "without id")
	log.DebugWithContext(ctx, "filtered")

	entries := logs.TakeAll()
	require.Len(t, entries, 2)
	require.Equal(t, map[string]any{"request_id": id.String()}, entries[0].ContextMap())
	require.Empty(t, entries[1].ContextMap())
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger("json", "info")
	require.NoError(t, err)
	_, err = NewLogger("text", "debug")
	require.NoError(t, err)
	_, err = NewLogger("json", "loud")
	require.ErrorContains(t, err, "unknown log level")
	_, err = NewLogger("xml", "info")
	require.ErrorContains(t, err, "unknown log format")

	l, err := NewLogger("anything", "none")
	require.NoError(t, err)
	require.NotNil(t, l)
}
