package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"whatsdata/internal/config"
	"whatsdata/internal/features"
	"whatsdata/internal/models"
	"whatsdata/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatFetcher_DisabledWithoutBaseURL(t *testing.T) {
	cfg := config.DefaultConfig()
	fetcher, err := newChatFetcher(cfg, nil, features.NewManager(), quietLogger())
	require.NoError(t, err)
	assert.Nil(t, fetcher)
}

func TestNewChatFetcher_InvalidZone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WAHA.BaseURL = "http://127.0.0.1:1"
	cfg.WAHA.TimeZone = "Asia/Atlantis"

	_, err := newChatFetcher(cfg, nil, features.NewManager(), quietLogger())
	assert.Error(t, err)
}

func TestNewChatFetcher_FollowsFeatureFlag(t *testing.T) {
	var requests atomic.Int32
	waha := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /api/default/chats/6281234567890@c.us/messages":
			requests.Add(1)
			assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
			w.Write([]byte(`{"messages":[{"id":"w1","from":"6281234567890@c.us","body":"halo","timestamp":1710064800}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer waha.Close()

	cfg := config.DefaultConfig()
	cfg.Storage.BaseDir = t.TempDir()
	cfg.WAHA.BaseURL = waha.URL
	cfg.WAHA.APIKey = "secret"
	cfg.WAHA.Chats = []models.FetchChat{{ChatID: "081234567890", Name: "Budi"}}

	fs, err := newFileStore(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, fs.EnsureDirs(context.Background()))

	flags := features.NewManager()
	fetcher, err := newChatFetcher(cfg, fs, flags, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, fetcher)

	assert.Nil(t, fetcher.RunOnce(context.Background()), "flag is off by default")
	assert.Zero(t, requests.Load())

	require.NoError(t, flags.Set(features.FlagWAHAFetcher, true, features.SourceConfig))
	results := fetcher.RunOnce(context.Background())
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.EqualValues(t, 1, requests.Load())

	records, err := fs.Read(context.Background(), store.DirMessagesID, results[0].File)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "w1", records[0].String("id"))
}
