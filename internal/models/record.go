package models

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Record is one element of a JSON blob, kept as decoded so unknown fields survive a round trip
type Record map[string]any

// Has reports whether the key is present, even with a null value
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// IsNumber reports whether the field holds a number or numeric text
func (r Record) IsNumber(key string) bool {
	_, ok := r.Number(key)
	return ok
}

// String returns the field rendered as text, "" when missing or null
func (r Record) String(key string) string {
	return ToString(r[key])
}

// Number returns the field as float64 and whether it held a usable number
func (r Record) Number(key string) (float64, bool) {
	return ToFloat(r[key])
}

// Int64 returns the field truncated to an integer, 0 when missing or non-numeric
func (r Record) Int64(key string) int64 {
	f, ok := ToFloat(r[key])
	if !ok {
		return 0
	}
	return int64(f)
}

// Truthy applies JavaScript truthiness to the field
func (r Record) Truthy(key string) bool {
	return Truthy(r[key])
}

// Clone returns a shallow copy
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MergeRecord overlays incoming onto existing; incoming fields win and unspecified fields are kept
func MergeRecord(existing, incoming Record) Record {
	merged := existing.Clone()
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// ToString renders scalar JSON values as text
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ToFloat coerces numbers and numeric strings; ok is false for anything else
func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsNumeric reports whether v is a JSON number, not a numeric string
func IsNumeric(v any) bool {
	switch v.(type) {
	case json.Number, float64, float32, int, int64, int32:
		return true
	}
	return false
}

// Truthy mirrors JavaScript's !!value for decoded JSON
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number, float64, float32, int, int64, int32:
		f, ok := ToFloat(t)
		return ok && f != 0
	default:
		return true
	}
}
