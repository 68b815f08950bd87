package query

import (
	"strings"
	"time"

	"whatsdata/internal/errors"
	"whatsdata/internal/models"
)

// DateRange bounds message time inclusively, in epoch milliseconds
type DateRange struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Contains reports whether ms lies inside the range
func (d DateRange) Contains(ms int64) bool {
	return ms >= d.StartMs && ms <= d.EndMs
}

// MessageFilter holds the optional message predicates. Zero values disable a
// predicate; all enabled predicates must match.
type MessageFilter struct {
	ContactID string
	FromUser  string
	ToUser    string
	Range     *DateRange
	Search    string
	HasMedia  *bool
	FromMe    *bool

	// UndatedAsEpoch lets messages without a usable timestamp through a date
	// range as if sent at the epoch. Listings drop them; aggregates keep them.
	UndatedAsEpoch bool
}

// Active reports whether any predicate is set
func (f MessageFilter) Active() bool {
	return f.ContactID != "" || f.FromUser != "" || f.ToUser != "" || f.Range != nil ||
		f.Search != "" || f.HasMedia != nil || f.FromMe != nil
}

// Match evaluates the predicates in order: contact, sender, recipient, date
// range, text search, then media and direction flags.
func (f MessageFilter) Match(m models.Message) bool {
	if f.ContactID != "" && m.From != f.ContactID && m.To != f.ContactID {
		return false
	}
	if f.FromUser != "" && m.From != f.FromUser && m.FromUser != f.FromUser {
		return false
	}
	if f.ToUser != "" && m.To != f.ToUser && m.ToUser != f.ToUser {
		return false
	}
	if f.Range != nil {
		if !m.Dated && !f.UndatedAsEpoch {
			return false
		}
		if !f.Range.Contains(m.UnixMilli()) {
			return false
		}
	}
	if f.Search != "" && !containsFold(f.Search, m.Body, m.Message, m.From, m.To) {
		return false
	}
	if f.HasMedia != nil && m.HasMedia != *f.HasMedia {
		return false
	}
	if f.FromMe != nil && m.FromMe != *f.FromMe {
		return false
	}
	return true
}

// FilterMessages keeps the messages matching f, preserving order
func FilterMessages(msgs []models.Message, f MessageFilter) []models.Message {
	if !f.Active() {
		return msgs
	}
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	return out
}

// FilterContacts keeps contacts whose name, id or phone contains search, case-insensitively
func FilterContacts(records []models.Record, search string) []models.Record {
	if search == "" {
		return records
	}
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if containsFold(search, r.String(models.FieldName), r.String(models.FieldID), r.String(models.FieldPhone)) {
			out = append(out, r)
		}
	}
	return out
}

func containsFold(needle string, haystacks ...string) bool {
	n := strings.ToLower(needle)
	for _, h := range haystacks {
		if h != "" && strings.Contains(strings.ToLower(h), n) {
			return true
		}
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps and zone-less dates or date-times,
// the latter read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewInputError("Invalid date: " + s).WithContext("value", s)
}

// ParseDateRange builds a range from optional bounds. It returns nil when both
// are empty. A missing start is the epoch and a missing end is now.
func ParseDateRange(start, end string, now time.Time) (*DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}

	r := &DateRange{StartMs: 0, EndMs: now.UnixMilli()}
	if start != "" {
		t, err := ParseDate(start)
		if err != nil {
			return nil, err
		}
		r.StartMs = t.UnixMilli()
	}
	if end != "" {
		t, err := ParseDate(end)
		if err != nil {
			return nil, err
		}
		r.EndMs = t.UnixMilli()
	}
	if r.StartMs > r.EndMs {
		return nil, errors.NewInputError("start_date must not be after end_date")
	}
	return r, nil
}

// ParseFlag turns a present query flag into a predicate value: only "true" is true
func ParseFlag(raw string, present bool) *bool {
	if !present {
		return nil
	}
	v := raw == "true"
	return &v
}
