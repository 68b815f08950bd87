package query

import (
	"sort"
	"strings"

	"whatsdata/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Order is a sort direction
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseOrder reads "desc" case-insensitively; anything else is ascending
func ParseOrder(s string) Order {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

var numericFields = map[string]bool{
	models.FieldTimestamp: true,
	models.FieldCreatedAt: true,
	models.FieldUpdatedAt: true,
}

// Sorter orders records by one field. Numeric fields, and any pair of
// numeric values, compare as numbers with missing = 0; all else compares as
// text under the configured locale's collation.
type Sorter struct {
	tag language.Tag
}

// NewSorter builds a sorter for locale, falling back to English when the tag is unknown
func NewSorter(locale string) *Sorter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Sorter{tag: tag}
}

// Sort orders records in place. Equal keys keep their input order in both directions.
func (s *Sorter) Sort(records []models.Record, field string, order Order) {
	cmp := s.comparator(field)
	sort.SliceStable(records, func(i, j int) bool {
		c := cmp(records[i][field], records[j][field])
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
}

// SortMessages orders messages in place by a field of their raw record
func (s *Sorter) SortMessages(msgs []models.Message, field string, order Order) {
	cmp := s.comparator(field)
	sort.SliceStable(msgs, func(i, j int) bool {
		c := cmp(msgs[i].Raw[field], msgs[j].Raw[field])
		if order == Desc {
			return c > 0
		}
		return c < 0
	})
}

// comparator returns a three-way compare for values of field. A collator
// keeps internal buffers, so each sort gets its own.
func (s *Sorter) comparator(field string) func(a, b any) int {
	col := collate.New(s.tag)
	return func(a, b any) int {
		if numericFields[field] || (models.IsNumeric(a) && models.IsNumeric(b)) {
			x, _ := models.ToFloat(a)
			y, _ := models.ToFloat(b)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
		return col.CompareString(models.ToString(a), models.ToString(b))
	}
}
