// Package importer converts raw WAHA exports into the flat contact and
// message records served by the API.
package importer

import (
	"strings"
	"time"

	"whatsdata/internal/models"
)

// Placeholders written when a chat export lacks its last message
const (
	NoMessageBody = "No message body"
	NoSender      = "No sender"
)

// Message output fields
const (
	FieldFromName = "from_name"
	FieldToName   = "to_name"
)

// DatetimeLayout renders message times as dd/mm/yy HH:MM:SS
const DatetimeLayout = "02/01/06 15:04:05"

// DefaultMessageFields is the field set used when a request names none
var DefaultMessageFields = []string{
	models.FieldTimestamp,
	models.FieldFromUser,
	FieldFromName,
	models.FieldToUser,
	FieldToName,
	models.FieldMessage,
	models.FieldDatetime,
}

// passthroughFields are copied verbatim when requested
var passthroughFields = []string{models.FieldID, models.FieldFromMe, models.FieldSource, models.FieldHasMedia}

// ImportChats turns a chat export ([{id, name, lastMessage{body, from}}])
// into contact records. Items without an id are skipped and counted.
func ImportChats(chats []models.Record) ([]models.Record, int) {
	out := make([]models.Record, 0, len(chats))
	skipped := 0

	for _, chat := range chats {
		id := chat.String(models.FieldID)
		if id == "" {
			skipped++
			continue
		}
		name := chat.String(models.FieldName)
		if name == "" {
			name = models.UnknownName
		}

		lastMessage, lastFrom := models.NoLastMessage, NoSender
		if last, ok := chat["lastMessage"].(map[string]any); ok && len(last) > 0 {
			lastMessage = stringOr(last, models.FieldBody, NoMessageBody)
			lastFrom = stringOr(last, models.FieldFrom, NoSender)
		}

		out = append(out, models.Record{
			models.FieldID:          id,
			models.FieldName:        name,
			models.FieldLastMessage: lastMessage,
			models.FieldLastFrom:    lastFrom,
		})
	}
	return out, skipped
}

func stringOr(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	return models.ToString(v)
}

// ContactNames maps contact id to name for records carrying both
func ContactNames(contacts []models.Record) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		id, name := c.String(models.FieldID), c.String(models.FieldName)
		if id != "" && name != "" {
			names[id] = name
		}
	}
	return names
}

// ParseFields splits a comma separated field list; empty input gives the defaults
func ParseFields(raw string) []string {
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return append([]string(nil), DefaultMessageFields...)
	}
	return fields
}

// ImportMessages projects raw messages onto fields. from_user/to_user come
// from the raw from/to, names are resolved through names, message comes from
// body and datetime is the timestamp rendered in loc.
func ImportMessages(messages []models.Record, fields []string, names map[string]string, loc *time.Location) []models.Record {
	if loc == nil {
		loc = time.UTC
	}
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}

	out := make([]models.Record, 0, len(messages))
	for _, raw := range messages {
		r := models.Record{}

		if want[models.FieldTimestamp] && raw.Has(models.FieldTimestamp) {
			r[models.FieldTimestamp] = raw[models.FieldTimestamp]
		}
		if want[models.FieldFromUser] && raw.Has(models.FieldFrom) {
			from := raw.String(models.FieldFrom)
			r[models.FieldFromUser] = raw[models.FieldFrom]
			if name, ok := names[from]; ok {
				r[FieldFromName] = name
			}
		}
		if want[models.FieldToUser] && raw.Has(models.FieldTo) {
			to := raw.String(models.FieldTo)
			r[models.FieldToUser] = raw[models.FieldTo]
			if name, ok := names[to]; ok {
				r[FieldToName] = name
			}
		}
		if want[models.FieldMessage] && raw.Has(models.FieldBody) {
			r[models.FieldMessage] = raw[models.FieldBody]
		}
		if want[models.FieldDatetime] && raw.Has(models.FieldTimestamp) {
			if ts, ok := raw.Number(models.FieldTimestamp); ok {
				r[models.FieldDatetime] = time.Unix(int64(ts), 0).In(loc).Format(DatetimeLayout)
			}
		}
		for _, f := range passthroughFields {
			if want[f] && raw.Has(f) {
				r[f] = raw[f]
			}
		}
		out = append(out, r)
	}
	return out
}
