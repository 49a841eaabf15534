package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/campus/pkg/contextkeys"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeLine(t, &buf)
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		assert.NotZero(t, buf.Len())

		buf.Reset()
		logger.Error("error message")
		assert.NotZero(t, buf.Len())
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("key", "value").WithFields(map[string]interface{}{"count": 42}).Info("message")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, float64(42), entry["count"])

	buf.Reset()
	logger.WithError(errors.New("boom")).Error("failed")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])

	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_Formatted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.Debugf("test %s %d", "string", 42)
	assert.Equal(t, "test string 42", decodeLine(t, &buf)["msg"])

	buf.Reset()
	logger.Warnf("warning %s", "test")
	assert.Equal(t, "warning test", decodeLine(t, &buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	ctx = contextkeys.WithPrincipalID(ctx, "p-1")

	FromContext(ctx).Info("hello")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "p-1", entry["principal_id"])
}

func TestGetLogger_Default(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
}
