package service

import (
	"context"
	"testing"

	"whatsdata/internal/errors"
	"whatsdata/internal/models"
	"whatsdata/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessages(t *testing.T, base string) {
	writeBlob(t, base, "output", "data_saya.json", []map[string]any{
		{"id": "m1", "from": "6281@c.us", "to": "me@c.us", "body": "selamat pagi", "timestamp": 1700000000, "fromMe": false},
		{"id": "m2", "from": "me@c.us", "to": "6281@c.us", "body": "pagi juga", "timestamp": 1700000600, "fromMe": true},
		{"id": "m3", "from": "6282@c.us", "to": "me@c.us", "timestamp": 1700100000, "hasMedia": true, "mediaType": "image"},
	})
	writeBlob(t, base, "output", "messages_old.json", []map[string]any{
		{"id": "m0", "from": "6282@c.us", "to": "me@c.us", "message": "lama", "timestamp": 1600000000},
	})
}

func flag(v bool) *bool { return &v }

func TestMessageService_ListDefaultsSortByTimestamp(t *testing.T) {
	opts, base := newTestOptions(t)
	seedMessages(t, base)

	svc := NewMessageService(opts)
	list, err := svc.List(context.Background(), MessageQuery{Fields: "id,source"})
	require.NoError(t, err)

	require.Len(t, list.Messages, 4)
	ids := []string{}
	for _, m := range list.Messages {
		ids = append(ids, m.String("id"))
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, ids)
	assert.Equal(t, "messages_old.json", list.Messages[0].String("source"))
	assert.Equal(t, SourceMultiple, list.Source)
	assert.Equal(t, 4, list.Statistics.TotalMessages)
	assert.Equal(t, 1, list.Statistics.MediaMessages)
	assert.Nil(t, list.Filters.ContactID)
}

func TestMessageService_ListFilters(t *testing.T) {
	opts, base := newTestOptions(t)
	seedMessages(t, base)
	svc := NewMessageService(opts)
	ctx := context.Background()

	tests := []struct {
		name string
		q    MessageQuery
		ids  []string
	}{
		{"contact", MessageQuery{ContactID: "6281@c.us"}, []string{"m1", "m2"}},
		{"from user", MessageQuery{FromUser: "6282@c.us"}, []string{"m0", "m3"}},
		{"to user", MessageQuery{ToUser: "6281@c.us"}, []string{"m2"}},
		{"media", MessageQuery{HasMedia: flag(true)}, []string{"m3"}},
		{"from me false", MessageQuery{FromMe: flag(false)}, []string{"m0", "m1", "m3"}},
		{"search alias", MessageQuery{Search: "LAMA"}, []string{"m0"}},
		{"date range", MessageQuery{StartDate: "2023-11-14", EndDate: "2023-11-15"}, []string{"m1", "m2"}},
		{"desc", MessageQuery{Order: "desc", Limit: "2"}, []string{"m3", "m2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.q.Fields = "id"
			list, err := svc.List(ctx, tt.q)
			require.NoError(t, err)
			ids := []string{}
			for _, m := range list.Messages {
				ids = append(ids, m.String("id"))
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestMessageService_StatisticsCoverFilteredSet(t *testing.T) {
	opts, base := newTestOptions(t)
	seedMessages(t, base)
	svc := NewMessageService(opts)

	list, err := svc.List(context.Background(), MessageQuery{ContactID: "6281@c.us", Limit: "1"})
	require.NoError(t, err)

	assert.Len(t, list.Messages, 1)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 2, list.Statistics.TotalMessages)
	assert.Equal(t, 1, list.Statistics.SentMessages)
	require.NotNil(t, list.Filters.ContactID)
	assert.Equal(t, "6281@c.us", *list.Filters.ContactID)
}

func TestMessageService_DateFilterDropsUndated(t *testing.T) {
	opts, base := newTestOptions(t)
	writeBlob(t, base, "output", "data_saya.json", []map[string]any{
		{"id": "dated", "from": "6281@c.us", "to": "me@c.us", "body": "tahun lalu", "timestamp": 1700000000},
		{"id": "undated", "from": "6281@c.us", "to": "me@c.us", "body": "undated"},
		{"id": "garbled", "from": "6281@c.us", "to": "me@c.us", "body": "x", "timestamp": "kemarin"},
	})
	svc := NewMessageService(opts)

	list, err := svc.List(context.Background(), MessageQuery{EndDate: "2024-01-01"})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "dated", list.Messages[0].String("id"))

	all, err := svc.List(context.Background(), MessageQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total, "without a range undated messages are listed")
}

func TestMessageService_ListBadDate(t *testing.T) {
	opts, base := newTestOptions(t)
	seedMessages(t, base)
	svc := NewMessageService(opts)

	_, err := svc.List(context.Background(), MessageQuery{StartDate: "yesterday"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestMessageService_CreateFillsDefaults(t *testing.T) {
	opts, _ := newTestOptions(t)
	svc := NewMessageService(opts)

	res, err := svc.Create(context.Background(), []models.Record{
		{"from": "a@c.us", "to": "b@c.us", "message": "hi", "extra": "dropped"},
		{"from": "a@c.us", "to": "b@c.us"},
		{"from": "a@c.us", "to": "b@c.us", "hasMedia": true, "id": "custom", "timestamp": int64(5)},
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 2)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, "data_saya.json", res.File)

	first := res.Saved[0]
	assert.Equal(t, "1710072000000_0", first["id"])
	assert.Equal(t, "hi", first["body"])
	assert.Equal(t, "hi", first["message"])
	assert.Equal(t, fixedNow.Unix(), first["timestamp"])
	assert.Equal(t, false, first["fromMe"])
	assert.Equal(t, false, first["hasMedia"])
	assert.Equal(t, "api_v1", first["source"])
	assert.Nil(t, first["mediaType"])
	assert.Equal(t, "2024-03-10T12:00:00.000Z", first["datetime"])
	assert.NotContains(t, first, "extra")

	second := res.Saved[1]
	assert.Equal(t, "custom", second["id"])
	assert.Equal(t, int64(5), second["timestamp"])
	assert.Equal(t, "", second["body"])

	assert.Len(t, readBlob(t, opts, store.DirOutput, "data_saya.json"), 2)
}

func TestMessageService_CreateThenList(t *testing.T) {
	opts, _ := newTestOptions(t)
	svc := NewMessageService(opts)
	ctx := context.Background()

	_, err := svc.Create(ctx, []models.Record{{"from": "a@c.us", "to": "b@c.us", "body": "posted"}})
	require.NoError(t, err)

	list, err := svc.List(ctx, MessageQuery{File: "data_saya.json"})
	require.NoError(t, err)
	require.Len(t, list.Messages, 1)

	got := list.Messages[0]
	assert.Equal(t, "posted", got.String("body"))
	assert.Equal(t, "api_v1", got.String("source"))
	assert.Equal(t, "false", got.String("fromMe"))
	assert.Equal(t, "2024-03-10T12:00:00.000Z", got.String("datetime"))
}

func TestMessageService_CreateRejectsAllInvalid(t *testing.T) {
	opts, _ := newTestOptions(t)
	svc := NewMessageService(opts)

	_, err := svc.Create(context.Background(), []models.Record{{"from": "a"}})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}
