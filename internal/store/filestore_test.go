package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsdata/internal/errors"
	"whatsdata/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	base := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := NewFileStore(Options{BaseDir: base, Logger: logger})
	require.NoError(t, err)
	return s, base
}

func writeRaw(t *testing.T, base, dir, name, content string) {
	t.Helper()
	path := filepath.Join(base, dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"kontak_saya.json", KindContacts},
		{"Contacts.json", KindContacts},
		{"devteam.json", KindContacts},
		{"data_saya.json", KindMessages},
		{"pesan_masuk.json", KindMessages},
		{"response_times.json", KindMessages},
		{"old_stuff.json", KindBackup},
		{"archive-2023.json", KindBackup},
		{"contacts_backup.json", KindContacts},
		{"random.json", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.name))
		})
	}
}

func TestNewFileStore_Validation(t *testing.T) {
	_, err := NewFileStore(Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))

	_, err = NewFileStore(Options{BaseDir: t.TempDir(), Dirs: map[string]string{"input": "../escape"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func TestFileStore_DirsOrder(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, []string{DirInput, DirOutput, DirChatID, DirMessagesID}, s.Dirs())
}

func TestFileStore_EnsureDirs(t *testing.T) {
	s, base := newTestStore(t)
	require.NoError(t, s.EnsureDirs(context.Background()))

	for _, dir := range []string{"input", "output", "chatId", "messagesId"} {
		assert.DirExists(t, filepath.Join(base, dir))
	}
	// idempotent
	require.NoError(t, s.EnsureDirs(context.Background()))
}

func TestFileStore_WriteReadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	records := []models.Record{
		{"id": "628111@c.us", "name": "Budi <dev>"},
		{"id": "628222@c.us", "name": "Sari", "timestamp": 1700000000},
	}
	require.NoError(t, s.Write(ctx, DirOutput, "kontak_saya.json", records))

	got, err := s.Read(ctx, DirOutput, "kontak_saya.json")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Budi <dev>", got[0].String("name"))
	assert.Equal(t, int64(1700000000), got[1].Int64("timestamp"))
}

func TestFileStore_WriteDisablesHTMLEscape(t *testing.T) {
	s, base := newTestStore(t)
	require.NoError(t, s.Write(context.Background(), DirOutput, "kontak_saya.json",
		[]models.Record{{"id": "1", "name": "A & B <x>"}}))

	raw, err := os.ReadFile(filepath.Join(base, "output", "kontak_saya.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "A & B <x>")
	assert.Contains(t, string(raw), "\n  ")
}

func TestFileStore_ReadSingleObject(t *testing.T) {
	s, base := newTestStore(t)
	writeRaw(t, base, "input", "person.json", `{"id":"1@c.us","name":"Solo"}`)

	got, err := s.Read(context.Background(), DirInput, "person.json")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Solo", got[0].String("name"))
}

func TestFileStore_ReadDropsNonObjects(t *testing.T) {
	s, base := newTestStore(t)
	writeRaw(t, base, "input", "data.json", `[{"id":"a"}, 5, "x", null, {"id":"b"}]`)

	got, err := s.Read(context.Background(), DirInput, "data.json")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].String("id"))
	assert.Equal(t, "b", got[1].String("id"))
}

func TestFileStore_ReadInvalid(t *testing.T) {
	s, base := newTestStore(t)
	ctx := context.Background()

	writeRaw(t, base, "input", "broken.json", `[{"id":`)
	_, err := s.Read(ctx, DirInput, "broken.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))

	writeRaw(t, base, "input", "scalar.json", `42`)
	_, err = s.Read(ctx, DirInput, "scalar.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))

	writeRaw(t, base, "input", "trailing.json", `[] []`)
	_, err = s.Read(ctx, DirInput, "trailing.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))
}

func TestFileStore_ReadMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Read(context.Background(), DirInput, "nope.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestFileStore_ReadOversizedIsNotFound(t *testing.T) {
	base := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := NewFileStore(Options{BaseDir: base, MaxFileSize: 16, Logger: logger})
	require.NoError(t, err)

	writeRaw(t, base, "input", "data.json", `[{"id":"0123456789abcdef"}]`)
	_, err = s.Read(context.Background(), DirInput, "data.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	err = s.Write(context.Background(), DirInput, "data2.json", []models.Record{{"id": "0123456789abcdef"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeFileTooLarge))
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"../secrets.json", "a/b.json", "..", ""} {
		_, err := s.Read(ctx, DirInput, name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), name)
	}

	_, err := s.List(ctx, "elsewhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestFileStore_WriteKeepsBackup(t *testing.T) {
	s, base := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, DirOutput, "data_saya.json", []models.Record{{"id": "1"}}))
	_, err := os.Stat(filepath.Join(base, "output", "data_saya.json.bak"))
	assert.True(t, os.IsNotExist(err), "first write has nothing to back up")

	require.NoError(t, s.Write(ctx, DirOutput, "data_saya.json", []models.Record{{"id": "2"}}))
	raw, err := os.ReadFile(filepath.Join(base, "output", "data_saya.json.bak"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"1"`)
}

func TestFileStore_Append(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	total, err := s.Append(ctx, DirOutput, "data_saya.json", []models.Record{{"id": "1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	total, err = s.Append(ctx, DirOutput, "data_saya.json", []models.Record{{"id": "2"}, {"id": "3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	got, err := s.Read(ctx, DirOutput, "data_saya.json")
	require.NoError(t, err)
	ids := []string{got[0].String("id"), got[1].String("id"), got[2].String("id")}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestFileStore_AppendToInvalidFails(t *testing.T) {
	s, base := newTestStore(t)
	writeRaw(t, base, "output", "data_saya.json", `not json`)

	_, err := s.Append(context.Background(), DirOutput, "data_saya.json", []models.Record{{"id": "1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))
}

func TestFileStore_ListSortedAndFiltered(t *testing.T) {
	s, base := newTestStore(t)
	ctx := context.Background()

	writeRaw(t, base, "input", "zeta.json", `[]`)
	writeRaw(t, base, "input", "alpha.json", `[]`)
	writeRaw(t, base, "input", "notes.txt", `hello`)
	writeRaw(t, base, "input", "alpha.json.bak", `[]`)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "input", "nested.json"), 0o755))

	list, err := s.List(ctx, DirInput)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha.json", list[0].Name)
	assert.Equal(t, "zeta.json", list[1].Name)
	assert.Equal(t, "input/alpha.json", list[0].Path)
	assert.Equal(t, DirInput, list[0].Dir)
	assert.Equal(t, int64(2), list[0].Size)

	empty, err := s.List(ctx, DirChatID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFileStore_Locate(t *testing.T) {
	s, base := newTestStore(t)
	ctx := context.Background()

	writeRaw(t, base, "output", "shared.json", `[]`)
	writeRaw(t, base, "messagesId", "shared.json", `[1]`)

	meta, err := s.Locate(ctx, "shared.json")
	require.NoError(t, err)
	assert.Equal(t, DirOutput, meta.Dir)

	meta, err = s.Locate(ctx, "shared.json", DirMessagesID)
	require.NoError(t, err)
	assert.Equal(t, DirMessagesID, meta.Dir)

	_, err = s.Locate(ctx, "missing.json")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestFileStore_DeleteWithBackup(t *testing.T) {
	s, base := newTestStore(t)
	s.now = func() time.Time { return time.Date(2024, 3, 5, 10, 20, 30, 123e6, time.UTC) }
	ctx := context.Background()
	writeRaw(t, base, "input", "old.json", `[{"id":"x"}]`)

	backupName, err := s.Delete(ctx, DirInput, "old.json", true)
	require.NoError(t, err)
	assert.Equal(t, "old.json.backup.2024-03-05T10-20-30-123Z", backupName)

	_, err = os.Stat(filepath.Join(base, "input", "old.json"))
	assert.True(t, os.IsNotExist(err))
	raw, err := os.ReadFile(filepath.Join(base, "input", backupName))
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"x"}]`, string(raw))

	_, err = s.Delete(ctx, DirInput, "old.json", false)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestFileStore_ObserverEvents(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var events []Event
	s.Subscribe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, s.Write(ctx, DirOutput, "kontak_saya.json", []models.Record{{"id": "1"}}))
	_, err := s.Append(ctx, DirOutput, "data_saya.json", []models.Record{{"id": "1"}, {"id": "2"}})
	require.NoError(t, err)
	_, err = s.Delete(ctx, DirOutput, "kontak_saya.json", false)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, OpWrite, events[0].Op)
	assert.Equal(t, KindContacts, events[0].Kind)
	assert.Equal(t, OpAppend, events[1].Op)
	assert.Equal(t, 2, events[1].Records)
	assert.Equal(t, KindMessages, events[1].Kind)
	assert.Equal(t, OpDelete, events[2].Op)
}

func TestFileStore_FailedWriteEmitsNothing(t *testing.T) {
	s, _ := newTestStore(t)
	called := false
	s.Subscribe(func(Event) { called = true })

	err := s.Write(context.Background(), "nowhere", "x.json", nil)
	require.Error(t, err)
	assert.False(t, called)
}

func TestFileStore_ReadModifyWriteIsNotIsolated(t *testing.T) {
	// Concurrent appends each read, extend and rewrite the whole file. The
	// last rename wins, so the final count may be lower than the number of
	// appended records. Only the lower bound and file validity are asserted.
	s, _ := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Append(ctx, DirOutput, "data_saya.json", []models.Record{{"id": strings.Repeat("x", i+1)}})
		}(i)
	}
	wg.Wait()

	got, err := s.Read(ctx, DirOutput, "data_saya.json")
	require.NoError(t, err, "file must stay parseable")
	assert.GreaterOrEqual(t, len(got), 1)
	assert.LessOrEqual(t, len(got), writers)
}

func TestBackupName(t *testing.T) {
	at := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "a.json.backup.2023-12-31T23-59-59-000Z", BackupName("a.json", at))
}
