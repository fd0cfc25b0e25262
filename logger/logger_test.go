package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLogInfoCarriesExtras(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "info")

	l.LogInfo("frame dropped", "queue", 10, "interval", 50*time.Millisecond)

	line := decodeLine(t, &buf)
	assert.Equal(t, "frame dropped", line["msg"])
	assert.Equal(t, float64(10), line["queue"])
	assert.Equal(t, "50ms", line["interval"])
}

func TestLogErrorKeepsMessage(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "info")

	l.LogError(errors.New("socket closed"), "send failed", "command", "takeoff")

	line := decodeLine(t, &buf)
	assert.Equal(t, "socket closed", line["msg"])
	assert.Equal(t, "send failed", line["message"])
	assert.Equal(t, "takeoff", line["command"])
	assert.Equal(t, "error", line["level"])
}

func TestOddExtrasAreIgnored(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "info")

	l.LogInfo("hello", "dangling")

	line := decodeLine(t, &buf)
	assert.NotContains(t, line, "dangling")
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "info")

	l.LogDebug("noisy")

	assert.Zero(t, buf.Len())
}

func TestNewLoggerCreatesFolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "gcs.log")

	l, err := NewLogger(path, "debug")
	require.NoError(t, err)
	l.LogInfo("ready")

	assert.FileExists(t, path)
}

func TestLogRequest(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "info")

	h := l.LogRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("status", "200")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	line := decodeLine(t, &buf)
	assert.Equal(t, "/api/status", line["uri"])
	assert.Equal(t, "200", line["status"])
}
