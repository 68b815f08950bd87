package integration

import (
	"context"
	"path/filepath"
	"testing"

	"whatsdata/internal/errors"
	"whatsdata/internal/service"
	"whatsdata/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportChatsThenMessages(t *testing.T) {
	env := NewTestEnvironment(t, "import_flow")
	f := NewTestFixtures()
	env.WriteJSON(store.DirChatID, service.DefaultChatExport, f.ChatExport())
	env.WriteJSON(store.DirMessagesID, service.DefaultMessageExport, f.MessageExport())
	ctx := context.Background()

	chats, err := env.Files.ProcessChats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, chats.Imported)
	assert.Equal(t, 1, chats.Skipped)
	assert.Equal(t, "kontak_saya.json", chats.OutputFile)

	contacts := env.ReadRecords(store.DirOutput, "kontak_saya.json")
	require.Len(t, contacts, 2)
	assert.Equal(t, "Oke", contacts[0]["last_message"])
	assert.Equal(t, "Unknown", contacts[1]["name"])
	assert.Equal(t, "No last message", contacts[1]["last_message"])

	msgs, err := env.Files.ProcessMessages(ctx, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, msgs.Imported)
	assert.Equal(t, 0, msgs.Skipped)

	imported := env.ReadRecords(store.DirOutput, "data_saya.json")
	require.Len(t, imported, 2)
	assert.Equal(t, "6281234567890@c.us", imported[0]["from_user"])
	assert.Equal(t, "Budi Santoso", imported[0]["from_name"], "names resolve through the imported contacts")
	assert.Equal(t, "Halo", imported[0]["message"])
	assert.Equal(t, "03/03/24 09:00:00", imported[0]["datetime"])

	again, err := env.Files.ProcessMessages(ctx, "", "", "timestamp,message")
	require.NoError(t, err)
	assert.Equal(t, 4, again.Total, "importing twice appends")
}

func TestImportMissingExport(t *testing.T) {
	env := NewTestEnvironment(t, "import_missing")

	_, err := env.Files.ProcessChats(context.Background(), "nope.json", "")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestFileSaveListDelete(t *testing.T) {
	env := NewTestEnvironment(t, "file_lifecycle")
	ctx := context.Background()

	created, err := env.Files.Save(ctx, service.SaveFileRequest{
		Filename: "pesan_arsip",
		Data:     `[{"from":"a","to":"b","body":"x"}]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "pesan_arsip.json", created.Filename)
	assert.False(t, created.BackupCreated)

	overwritten, err := env.Files.Save(ctx, service.SaveFileRequest{Filename: "pesan_arsip.json", Data: []any{}})
	require.NoError(t, err)
	assert.True(t, overwritten.BackupCreated)

	listing, err := env.Files.List(ctx, service.FileQuery{Directory: service.DirAll, Search: "arsip"})
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, store.KindMessages, listing.Files[0].Kind)

	deleted, err := env.Files.Delete(ctx, "pesan_arsip.json", "", true)
	require.NoError(t, err)
	require.NotNil(t, deleted.BackupPath)
	assert.FileExists(t, filepath.Join(env.Config().Storage.BaseDir, *deleted.BackupPath))
	assert.NoFileExists(t, env.Path(store.DirOutput, "pesan_arsip.json"))

	_, err = env.Files.List(ctx, service.FileQuery{Directory: "etc"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}
