package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger()

	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "Logger should use JSON formatter")
}

func TestLogger_LogError(t *testing.T) {
	logger, buf := newBufferedLogger()

	err := NewNotFoundError("file", "kontak.json")
	logger.LogError(err, "Failed to read contacts", logrus.Fields{"request_id": "r-1"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "NOT_FOUND", entry["error_code"])
	assert.Equal(t, "kontak.json", entry["identifier"])
	assert.Equal(t, "r-1", entry["request_id"])
	assert.Equal(t, "Failed to read contacts", entry["msg"])
}

func TestLogger_LogWarn_PlainError(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.LogWarn(errors.New("backup skipped"), "Backup failed")

	output := buf.String()
	assert.Contains(t, output, `"level":"warning"`)
	assert.NotContains(t, output, "error_code")
}

func TestLogger_LogByStatus(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"client error is a warning", NewInputError("bad"), `"level":"warning"`},
		{"server error is an error", NewStorageError("write", "a.json", errors.New("eio")), `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger()
			logger.LogByStatus(tt.err, "request failed")
			assert.Contains(t, buf.String(), tt.level)
		})
	}
}

func TestWrapped(t *testing.T) {
	base := logrus.New()
	assert.Same(t, base, Wrapped(base).Logger)
}
