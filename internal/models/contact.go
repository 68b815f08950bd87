package models

import (
	"regexp"
	"strings"
)

// Contact field names and placeholders written by the chat importer
const (
	FieldName        = "name"
	FieldPhone       = "phone"
	FieldLastMessage = "last_message"
	FieldLastFrom    = "last_from"

	NoLastMessage = "No last message"
	UnknownName   = "Unknown"
)

// DefaultContactFields is the projection used when a request names no fields
var DefaultContactFields = []string{"id", "name", "last_message", "last_from", "timestamp"}

var (
	waSuffix      = regexp.MustCompile(`@(c\.us|g\.us)$`)
	allDigits     = regexp.MustCompile(`^[0-9]+$`)
	nonDigits     = regexp.MustCompile(`[^0-9]`)
	validWAIDForm = regexp.MustCompile(`^([0-9]+)@(c\.us|g\.us)$`)
)

// Contact is the typed view of a contact record
type Contact struct {
	ID          string
	Name        string
	Phone       string
	LastMessage string
	LastFrom    string
	CreatedAt   int64
	UpdatedAt   int64
	Timestamp   int64
	Source      string
	SourceFile  string
	Raw         Record
}

// NormalizeContact builds the typed view over r without modifying it
func NormalizeContact(r Record) Contact {
	return Contact{
		ID:          r.String(FieldID),
		Name:        r.String(FieldName),
		Phone:       r.String(FieldPhone),
		LastMessage: r.String(FieldLastMessage),
		LastFrom:    r.String(FieldLastFrom),
		CreatedAt:   r.Int64(FieldCreatedAt),
		UpdatedAt:   r.Int64(FieldUpdatedAt),
		Timestamp:   r.Int64(FieldTimestamp),
		Source:      r.String(FieldSource),
		SourceFile:  r.String(FieldSourceFile),
		Raw:         r,
	}
}

// IsActive reports whether the contact has a real last message
func (c Contact) IsActive() bool {
	return c.LastMessage != "" && c.LastMessage != NoLastMessage
}

// HasName reports whether the contact carries a real name
func (c Contact) HasName() bool {
	return c.Name != "" && c.Name != UnknownName
}

// DisplayName prefers the name, then the formatted phone, then the raw id
func (c Contact) DisplayName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	if formatted := FormatIDForDisplay(c.ID); formatted != "" {
		return formatted
	}
	return UnknownName
}

// IsValidWhatsAppID accepts "<digits>@c.us", "<digits>@g.us" or bare digits
func IsValidWhatsAppID(id string) bool {
	return validWAIDForm.MatchString(id) || allDigits.MatchString(id)
}

// IsGroupID reports whether id addresses a group chat
func IsGroupID(id string) bool {
	return strings.Contains(id, "@g.us")
}

// IsIndividualID reports whether id addresses a single user
func IsIndividualID(id string) bool {
	return strings.Contains(id, "@c.us")
}

// PhoneFromID strips the WhatsApp suffix; "" when the rest is not all digits
func PhoneFromID(id string) string {
	clean := waSuffix.ReplaceAllString(id, "")
	if !allDigits.MatchString(clean) {
		return ""
	}
	return clean
}

// NormalizePhone returns the digits of phone with a local leading 0 rewritten to 62
func NormalizePhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	return digits
}

// WhatsAppIDFromPhone formats a phone number as an individual chat id; "" when too short
func WhatsAppIDFromPhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) < 10 {
		return ""
	}
	return NormalizePhone(digits) + "@c.us"
}

// FormatIDForDisplay renders an id as +<digits>, or returns it unchanged if it is not numeric
func FormatIDForDisplay(id string) string {
	phone := PhoneFromID(id)
	if phone == "" {
		return id
	}
	return "+" + phone
}
