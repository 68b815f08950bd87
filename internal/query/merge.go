package query

import "whatsdata/internal/models"

// Blob is one named collection taking part in a merge
type Blob struct {
	Name    string
	Records []models.Record
}

// Merge concatenates blobs in the given order, tagging each copied record
// with source = blob name. Duplicates are kept.
func Merge(blobs []Blob) []models.Record {
	return MergeAs(blobs, models.FieldSource)
}

// MergeAs is Merge with the provenance written to key instead of source
func MergeAs(blobs []Blob, key string) []models.Record {
	total := 0
	for _, b := range blobs {
		total += len(b.Records)
	}

	out := make([]models.Record, 0, total)
	for _, b := range blobs {
		for _, r := range b.Records {
			tagged := r.Clone()
			tagged[key] = b.Name
			out = append(out, tagged)
		}
	}
	return out
}
