package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"whatsdata/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewConfigWatcher(t *testing.T) {
	initial := DefaultConfig()
	watcher := NewConfigWatcher("/nonexistent/config.json", initial, 0, quietLogger())

	assert.Equal(t, 5*time.Second, watcher.interval)
	assert.Same(t, initial, watcher.GetConfig())
	assert.Len(t, watcher.callbacks, 0)
	assert.Equal(t, "config-watcher", watcher.String())
}

func TestConfigWatcher_ServeStopsOnCancel(t *testing.T) {
	watcher := NewConfigWatcher("/nonexistent/config.json", DefaultConfig(), 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := watcher.Serve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "info"}`), 0o644))

	initial, err := LoadConfig(path)
	require.NoError(t, err)

	watcher := NewConfigWatcher(path, initial, 10*time.Millisecond, quietLogger())

	var mu sync.Mutex
	var seen []string
	watcher.OnConfigChange(func(c *models.Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.LogLevel)
	})

	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	watcher.poll()

	assert.Equal(t, "debug", watcher.GetConfig().LogLevel)
	mu.Lock()
	assert.Equal(t, []string{"debug"}, seen)
	mu.Unlock()
}

func TestConfigWatcher_KeepsConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	initial, err := LoadConfig(path)
	require.NoError(t, err)
	watcher := NewConfigWatcher(path, initial, time.Second, quietLogger())

	called := false
	watcher.OnConfigChange(func(*models.Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": -1}}`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
	watcher.poll()

	assert.Same(t, initial, watcher.GetConfig())
	assert.False(t, called)
}

func TestConfigWatcher_CallbackPanicIsRecovered(t *testing.T) {
	watcher := NewConfigWatcher("/nonexistent/config.json", nil, time.Second, quietLogger())
	assert.NotPanics(t, func() {
		watcher.runCallback(func(*models.Config) { panic("boom") }, DefaultConfig())
	})
}
