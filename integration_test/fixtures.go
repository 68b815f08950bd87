package integration

import (
	"fmt"
	"time"
)

// TestFixtures provides canned WhatsApp exports
type TestFixtures struct{}

func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// Base is the instant every fixture timestamp is relative to: Sunday 2024-03-03 09:00 UTC
var Base = time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)

// Contacts in the primary contacts blob
func (f *TestFixtures) Contacts() []map[string]any {
	return []map[string]any{
		{"id": "6281234567890@c.us", "name": "Budi Santoso", "last_message": "Sampai besok", "last_from": "6281234567890@c.us", "created_at": Base.UnixMilli()},
		{"id": "6289876543210@c.us", "name": "Sari Dewi", "last_message": "No last message", "last_from": "none"},
		{"id": "447700900123@c.us", "name": "Unknown", "last_message": "Hello"},
	}
}

// Coworkers overlaps Contacts on Budi so merges see the same id twice
func (f *TestFixtures) Coworkers() []map[string]any {
	return []map[string]any{
		{"id": "6281234567890@c.us", "name": "Budi (kantor)", "last_message": "Rapat jam 10"},
		{"id": "6281111111111@c.us", "name": "Andi", "last_message": "Siap"},
	}
}

// Messages is a ten message conversation: four senders write to one
// recipient, the first two carry media.
func (f *TestFixtures) Messages() []map[string]any {
	out := make([]map[string]any, 0, 10)
	for i := 0; i < 10; i++ {
		m := map[string]any{
			"id":        fmt.Sprintf("msg_%02d", i),
			"from":      fmt.Sprintf("62811000000%d@c.us", i%4),
			"to":        "6289999999999@c.us",
			"body":      fmt.Sprintf("pesan nomor %d", i),
			"timestamp": Base.Add(time.Duration(i) * time.Hour).Unix(),
			"fromMe":    false,
			"hasMedia":  i < 2,
		}
		if i < 2 {
			m["mediaType"] = "image"
		}
		out = append(out, m)
	}
	return out
}

// OutputBlobs maps output file names to their content
func (f *TestFixtures) OutputBlobs() map[string][]map[string]any {
	return map[string][]map[string]any{
		"kontak_saya.json": f.Contacts(),
		"coworker.json":    f.Coworkers(),
		"data_saya.json":   f.Messages(),
	}
}

// ChatExport is the chatId/chats.json shape produced by the WhatsApp exporter
func (f *TestFixtures) ChatExport() []map[string]any {
	return []map[string]any{
		{"id": "6281234567890@c.us", "name": "Budi Santoso", "lastMessage": map[string]any{"body": "Oke", "from": "6281234567890@c.us"}},
		{"id": "6282222222222@c.us", "name": "", "lastMessage": map[string]any{}},
		{"name": "no id, skipped"},
	}
}

// MessageExport is the messagesId export shape
func (f *TestFixtures) MessageExport() []map[string]any {
	return []map[string]any{
		{"from": "6281234567890@c.us", "to": "6289999999999@c.us", "body": "Halo", "timestamp": Base.Unix(), "fromMe": false},
		{"from": "6289999999999@c.us", "to": "6281234567890@c.us", "body": "Halo juga", "timestamp": Base.Add(3 * time.Minute).Unix(), "fromMe": true},
	}
}
