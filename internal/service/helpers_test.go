package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"whatsdata/internal/models"
	"whatsdata/internal/store"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// newTestOptions returns options over a FileStore rooted in a temp dir
func newTestOptions(t *testing.T) (Options, string) {
	t.Helper()
	base := t.TempDir()
	fs, err := store.NewFileStore(store.Options{BaseDir: base, Logger: quietLogger()})
	require.NoError(t, err)
	return Options{
		Store:  fs,
		Logger: quietLogger(),
		Now:    func() time.Time { return fixedNow },
	}, base
}

// writeBlob stores v as JSON under base/dir/name
func writeBlob(t *testing.T, base, dir, name string, v any) {
	t.Helper()
	path := filepath.Join(base, dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func writeRaw(t *testing.T, base, dir, name, content string) {
	t.Helper()
	path := filepath.Join(base, dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readBlob(t *testing.T, opts Options, dir, name string) []models.Record {
	t.Helper()
	records, err := opts.Store.Read(context.Background(), dir, name)
	require.NoError(t, err)
	return records
}

// mockBlobStore lets tests force storage failures
type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) Dirs() []string {
	return []string{store.DirInput, store.DirOutput, store.DirChatID, store.DirMessagesID}
}

func (m *mockBlobStore) List(ctx context.Context, dir string) ([]store.BlobMeta, error) {
	args := m.Called(ctx, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.BlobMeta), args.Error(1)
}

func (m *mockBlobStore) Stat(ctx context.Context, dir, name string) (store.BlobMeta, error) {
	args := m.Called(ctx, dir, name)
	return args.Get(0).(store.BlobMeta), args.Error(1)
}

func (m *mockBlobStore) Locate(ctx context.Context, name string, dirs ...string) (store.BlobMeta, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(store.BlobMeta), args.Error(1)
}

func (m *mockBlobStore) Read(ctx context.Context, dir, name string) ([]models.Record, error) {
	args := m.Called(ctx, dir, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Record), args.Error(1)
}

func (m *mockBlobStore) ReadRaw(ctx context.Context, dir, name string) (any, error) {
	args := m.Called(ctx, dir, name)
	return args.Get(0), args.Error(1)
}

func (m *mockBlobStore) Write(ctx context.Context, dir, name string, records []models.Record) error {
	args := m.Called(ctx, dir, name, records)
	return args.Error(0)
}

func (m *mockBlobStore) WriteDocument(ctx context.Context, dir, name string, doc any, backup bool) error {
	args := m.Called(ctx, dir, name, doc, backup)
	return args.Error(0)
}

func (m *mockBlobStore) Append(ctx context.Context, dir, name string, records []models.Record) (int, error) {
	args := m.Called(ctx, dir, name, records)
	return args.Int(0), args.Error(1)
}

func (m *mockBlobStore) Delete(ctx context.Context, dir, name string, backup bool) (string, error) {
	args := m.Called(ctx, dir, name, backup)
	return args.String(0), args.Error(1)
}

func (m *mockBlobStore) Subscribe(o store.Observer) {
	m.Called(o)
}
