// Package store keeps record collections as JSON files in a few named directories.
//
// Writes replace the whole file (temp file plus rename) after copying the
// previous content to a backup. Read-modify-write sequences such as Append
// take no lock: two concurrent appends to the same file can interleave so
// that one of them is lost. Callers that need isolation must serialize
// writes themselves.
package store

import (
	"context"
	"regexp"
	"time"

	"whatsdata/internal/models"
)

// Logical directory names
const (
	DirInput      = "input"
	DirOutput     = "output"
	DirChatID     = "chatId"
	DirMessagesID = "messagesId"
)

// Kind classifies a blob by its file name
type Kind string

const (
	KindContacts Kind = "contacts"
	KindMessages Kind = "messages"
	KindBackup   Kind = "backup"
	KindUnknown  Kind = "unknown"
)

var (
	contactsPattern = regexp.MustCompile(`(?i)kontak|contact|coworker|devteam|person`)
	messagesPattern = regexp.MustCompile(`(?i)data|message|pesan|response`)
	backupPattern   = regexp.MustCompile(`(?i)backup|old|archive`)
)

// Classify maps a file name to its collection kind. Patterns are checked in
// order, so "contacts_backup.json" is a contacts blob.
func Classify(name string) Kind {
	switch {
	case contactsPattern.MatchString(name):
		return KindContacts
	case messagesPattern.MatchString(name):
		return KindMessages
	case backupPattern.MatchString(name):
		return KindBackup
	default:
		return KindUnknown
	}
}

// BlobMeta describes one JSON file
type BlobMeta struct {
	Name     string    `json:"name"`
	Dir      string    `json:"directory"`
	Path     string    `json:"relative_path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Kind     Kind      `json:"type"`
}

// Op names a mutation reported to observers
type Op string

const (
	OpWrite  Op = "write"
	OpAppend Op = "append"
	OpDelete Op = "delete"
)

// Event is emitted after every successful mutation
type Event struct {
	Op      Op        `json:"op"`
	Dir     string    `json:"directory"`
	Name    string    `json:"file"`
	Kind    Kind      `json:"type"`
	Records int       `json:"records"`
	At      time.Time `json:"at"`
}

// Observer receives mutation events synchronously; it must not block
type Observer func(Event)

// BlobStore is the storage contract used by the services
type BlobStore interface {
	Dirs() []string
	List(ctx context.Context, dir string) ([]BlobMeta, error)
	Stat(ctx context.Context, dir, name string) (BlobMeta, error)
	Locate(ctx context.Context, name string, dirs ...string) (BlobMeta, error)
	Read(ctx context.Context, dir, name string) ([]models.Record, error)
	ReadRaw(ctx context.Context, dir, name string) (any, error)
	Write(ctx context.Context, dir, name string, records []models.Record) error
	WriteDocument(ctx context.Context, dir, name string, doc any, backup bool) error
	Append(ctx context.Context, dir, name string, records []models.Record) (int, error)
	Delete(ctx context.Context, dir, name string, backup bool) (string, error)
	Subscribe(o Observer)
}
