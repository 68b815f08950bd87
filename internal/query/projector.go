// Package query implements the listing pipeline shared by the contact and
// message endpoints: merge, filter, sort, paginate and project.
package query

import (
	"strings"

	"whatsdata/internal/models"
)

// ParseFields splits a comma separated field list. Blank entries are dropped
// and repeats keep their first position. An empty list yields defaults.
func ParseFields(raw string, defaults []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		out = make([]string, len(defaults))
		copy(out, defaults)
	}
	return out
}

// Project copies the requested fields of r into a new record. Missing fields
// are omitted; a requested datetime is rendered from a non-zero timestamp.
func Project(r models.Record, fields []string) models.Record {
	out := make(models.Record, len(fields))
	for _, f := range fields {
		if f == models.FieldDatetime {
			if ts := r.Int64(models.FieldTimestamp); ts != 0 {
				out[f] = models.FormatISOMillis(ts * 1000)
				continue
			}
		}
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// ProjectAll applies Project to every record
func ProjectAll(records []models.Record, fields []string) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = Project(r, fields)
	}
	return out
}
