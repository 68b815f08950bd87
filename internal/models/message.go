package models

import "time"

// Message field names as they appear in exported blobs
const (
	FieldID           = "id"
	FieldFrom         = "from"
	FieldTo           = "to"
	FieldFromUser     = "from_user"
	FieldToUser       = "to_user"
	FieldBody         = "body"
	FieldMessage      = "message"
	FieldTimestamp    = "timestamp"
	FieldDatetime     = "datetime"
	FieldFromMe       = "fromMe"
	FieldHasMedia     = "hasMedia"
	FieldMediaType    = "mediaType"
	FieldMediaCaption = "mediaCaption"
	FieldSource       = "source"
	FieldSourceFile   = "source_file"
	FieldCreatedAt    = "created_at"
	FieldUpdatedAt    = "updated_at"
)

// DefaultMessageFields is the projection used when a request names no fields
var DefaultMessageFields = []string{"timestamp", "from", "to", "body", "datetime", "fromMe", "source", "hasMedia"}

// Message is the typed view of a message record, built once at load time.
// Aliases are already resolved: Body and Message fill each other, and From/To
// fall back to from_user/to_user.
type Message struct {
	ID           string
	From         string
	To           string
	FromUser     string
	ToUser       string
	Body         string
	Message      string
	Timestamp    int64 // epoch seconds
	Dated        bool  // timestamp present and numeric
	FromMe       bool
	HasMedia     bool
	MediaType    string
	MediaCaption string
	Source       string
	SourceFile   string
	Raw          Record
}

// NormalizeMessage builds the typed view over r without modifying it
func NormalizeMessage(r Record) Message {
	m := Message{
		ID:           r.String(FieldID),
		From:         r.String(FieldFrom),
		To:           r.String(FieldTo),
		FromUser:     r.String(FieldFromUser),
		ToUser:       r.String(FieldToUser),
		Body:         r.String(FieldBody),
		Message:      r.String(FieldMessage),
		Timestamp:    r.Int64(FieldTimestamp),
		Dated:        r.IsNumber(FieldTimestamp),
		FromMe:       r.Truthy(FieldFromMe),
		HasMedia:     r.Truthy(FieldHasMedia),
		MediaType:    r.String(FieldMediaType),
		MediaCaption: r.String(FieldMediaCaption),
		Source:       r.String(FieldSource),
		SourceFile:   r.String(FieldSourceFile),
		Raw:          r,
	}

	if m.Body == "" {
		m.Body = m.Message
	}
	if m.Message == "" {
		m.Message = m.Body
	}
	if m.From == "" {
		m.From = m.FromUser
	}
	if m.To == "" {
		m.To = m.ToUser
	}
	return m
}

// NormalizeMessages builds views for a whole collection
func NormalizeMessages(records []Record) []Message {
	out := make([]Message, len(records))
	for i, r := range records {
		out[i] = NormalizeMessage(r)
	}
	return out
}

// Text returns the message content, whichever alias carried it
func (m Message) Text() string {
	return m.Body
}

// UnixMilli returns the message time in epoch milliseconds
func (m Message) UnixMilli() int64 {
	return m.Timestamp * 1000
}

// Time returns the message time, zero when the record had no timestamp
func (m Message) Time() time.Time {
	if m.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(m.Timestamp, 0).UTC()
}

// Preview returns a short display text, with a media placeholder for captionless media
func (m Message) Preview(maxLength int) string {
	text := m.Text()
	if text == "" && m.HasMedia {
		mediaType := m.MediaType
		if mediaType == "" {
			mediaType = "media"
		}
		return "[" + mediaType + "]"
	}
	if text == "" {
		return "No message"
	}
	runes := []rune(text)
	if maxLength <= 0 || len(runes) <= maxLength {
		return text
	}
	return string(runes[:maxLength]) + "..."
}

// FormatISOMillis renders epoch milliseconds the way JavaScript's toISOString does
func FormatISOMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
