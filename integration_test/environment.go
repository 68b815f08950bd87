package integration

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"whatsdata/internal/cache"
	"whatsdata/internal/config"
	"whatsdata/internal/constants"
	"whatsdata/internal/models"
	"whatsdata/internal/service"
	"whatsdata/internal/store"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment is a data directory on disk with every service wired to it
type TestEnvironment struct {
	t      *testing.T
	name   string
	config *models.Config
	logger *logrus.Logger

	Store    *store.FileStore
	Contacts *service.ContactService
	Messages *service.MessageService
	Files    *service.FileService
	Stats    *service.StatsService
	Cache    *cache.Cache

	mu     sync.Mutex
	events []store.Event
}

// EnvironmentOption adjusts the configuration before services are built
type EnvironmentOption func(*models.Config)

// WithStatsCache enables the statistics cache with the given lifetime
func WithStatsCache(ttl time.Duration) EnvironmentOption {
	return func(c *models.Config) {
		c.Stats.CacheTTLSec = int(ttl / time.Second)
	}
}

// WithTimeZone sets the zone used for hour and day histograms
func WithTimeZone(zone string) EnvironmentOption {
	return func(c *models.Config) {
		c.Stats.TimeZone = zone
	}
}

// NewTestEnvironment creates an isolated data directory and the service graph over it
func NewTestEnvironment(t *testing.T, name string, opts ...EnvironmentOption) *TestEnvironment {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Stats.CacheTTLSec = 0
	for _, opt := range opts {
		opt(cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fs, err := store.NewFileStore(store.Options{
		BaseDir: cfg.Storage.BaseDir,
		Dirs: map[string]string{
			store.DirInput:      cfg.Storage.InputDir,
			store.DirOutput:     cfg.Storage.OutputDir,
			store.DirChatID:     cfg.Storage.ChatIDDir,
			store.DirMessagesID: cfg.Storage.MessagesIDDir,
		},
		MaxFileSize:  int64(cfg.Storage.MaxFileSizeMB) * constants.BytesPerMegabyte,
		BackupSuffix: cfg.Storage.BackupSuffix,
		Logger:       logger,
	})
	require.NoError(t, err, "environment %s", name)
	require.NoError(t, fs.EnsureDirs(context.Background()))

	env := &TestEnvironment{t: t, name: name, config: cfg, logger: logger, Store: fs}
	fs.Subscribe(env.record)

	svcOpts := service.Options{
		Store:   fs,
		Storage: cfg.Storage,
		Query:   cfg.Query,
		Stats:   cfg.Stats,
		Logger:  logger,
	}
	if cfg.Stats.CacheTTLSec > 0 {
		env.Cache = cache.New(time.Duration(cfg.Stats.CacheTTLSec) * time.Second)
	}
	env.Contacts = service.NewContactService(svcOpts)
	env.Messages = service.NewMessageService(svcOpts)
	env.Files = service.NewFileService(svcOpts)
	env.Stats = service.NewStatsService(svcOpts, env.Cache)
	return env
}

func (env *TestEnvironment) record(ev store.Event) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.events = append(env.events, ev)
}

// Events returns the mutations observed so far
func (env *TestEnvironment) Events() []store.Event {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]store.Event(nil), env.events...)
}

// Config returns the configuration the services were built from
func (env *TestEnvironment) Config() *models.Config {
	return env.config
}

// Path returns the absolute path of name inside the configured directory
func (env *TestEnvironment) Path(dir, name string) string {
	rel := map[string]string{
		store.DirInput:      env.config.Storage.InputDir,
		store.DirOutput:     env.config.Storage.OutputDir,
		store.DirChatID:     env.config.Storage.ChatIDDir,
		store.DirMessagesID: env.config.Storage.MessagesIDDir,
	}[dir]
	return filepath.Join(env.config.Storage.BaseDir, rel, name)
}

// WriteJSON stores v as a blob without going through the store
func (env *TestEnvironment) WriteJSON(dir, name string, v any) {
	env.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(env.t, err)
	env.WriteRaw(dir, name, string(data))
}

// WriteRaw stores content verbatim, for malformed fixtures
func (env *TestEnvironment) WriteRaw(dir, name, content string) {
	env.t.Helper()
	require.NoError(env.t, os.WriteFile(env.Path(dir, name), []byte(content), 0o600))
}

// ReadRecords decodes a blob straight from disk
func (env *TestEnvironment) ReadRecords(dir, name string) []map[string]any {
	env.t.Helper()
	data, err := os.ReadFile(env.Path(dir, name))
	require.NoError(env.t, err)
	var out []map[string]any
	require.NoError(env.t, json.Unmarshal(data, &out))
	return out
}

// PopulateWithFixtures writes the standard contact and message blobs
func (env *TestEnvironment) PopulateWithFixtures() {
	env.t.Helper()
	f := NewTestFixtures()
	for name, records := range f.OutputBlobs() {
		env.WriteJSON(store.DirOutput, name, records)
	}
}
