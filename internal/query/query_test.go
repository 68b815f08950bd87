package query

import (
	"fmt"
	"testing"
	"time"

	"whatsdata/internal/errors"
	"whatsdata/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestParseFields(t *testing.T) {
	defaults := []string{"id", "name"}

	assert.Equal(t, defaults, ParseFields("", defaults))
	assert.Equal(t, defaults, ParseFields(" , ,", defaults))
	assert.Equal(t, []string{"name", "id", "phone"}, ParseFields(" name,id ,, name,phone", defaults))

	got := ParseFields("", defaults)
	got[0] = "changed"
	assert.Equal(t, "id", defaults[0], "defaults must not be aliased")
}

func TestProject(t *testing.T) {
	r := models.Record{"id": "1", "name": "Ana", "timestamp": json.Number("1700000000"), "extra": true}

	out := Project(r, []string{"name", "missing", "datetime"})
	assert.Equal(t, models.Record{"name": "Ana", "datetime": "2023-11-14T22:13:20.000Z"}, out)
	assert.Len(t, r, 4, "input untouched")
}

func TestProject_DatetimeWithoutTimestamp(t *testing.T) {
	out := Project(models.Record{"datetime": "kept"}, []string{"datetime"})
	assert.Equal(t, "kept", out["datetime"])

	out = Project(models.Record{"timestamp": 0}, []string{"datetime"})
	assert.NotContains(t, out, "datetime")
}

func TestProject_NeverAddsKeys(t *testing.T) {
	records := []models.Record{
		{"a": 1},
		{"a": 1, "b": "x", "timestamp": 10},
		{},
	}
	fields := []string{"a", "b", "c", "datetime"}
	for _, r := range records {
		for k := range Project(r, fields) {
			if k == "datetime" {
				continue
			}
			assert.Contains(t, r, k)
		}
	}
}

func TestMerge(t *testing.T) {
	a := []models.Record{{"id": "1"}, {"id": "2"}}
	b := []models.Record{{"id": "1", "source": "old"}}

	merged := Merge([]Blob{{Name: "a.json", Records: a}, {Name: "b.json", Records: b}})
	require.Len(t, merged, 3)
	assert.Equal(t, "a.json", merged[0]["source"])
	assert.Equal(t, "a.json", merged[1]["source"])
	assert.Equal(t, "b.json", merged[2]["source"])

	assert.NotContains(t, a[0], "source")
	assert.Equal(t, "old", b[0]["source"])
}

func messages() []models.Message {
	return models.NormalizeMessages([]models.Record{
		{"from": "111@c.us", "to": "222@c.us", "body": "Hello World", "timestamp": 1000, "fromMe": true},
		{"from_user": "222@c.us", "to_user": "111@c.us", "message": "media here", "timestamp": 2000, "hasMedia": "yes"},
		{"from": "333@c.us", "to": "111@c.us", "body": "third", "timestamp": 3000},
		{"body": "no parties"},
	})
}

func TestMessageFilter(t *testing.T) {
	msgs := messages()

	tests := []struct {
		name   string
		filter MessageFilter
		want   int
	}{
		{"empty", MessageFilter{}, 4},
		{"contact either side", MessageFilter{ContactID: "111@c.us"}, 3},
		{"from alias", MessageFilter{FromUser: "222@c.us"}, 1},
		{"to alias", MessageFilter{ToUser: "111@c.us"}, 2},
		{"search body case insensitive", MessageFilter{Search: "WORLD"}, 1},
		{"search message alias", MessageFilter{Search: "media"}, 1},
		{"search party id", MessageFilter{Search: "333"}, 1},
		{"has media", MessageFilter{HasMedia: boolPtr(true)}, 1},
		{"no media", MessageFilter{HasMedia: boolPtr(false)}, 3},
		{"from me", MessageFilter{FromMe: boolPtr(true)}, 1},
		{"range", MessageFilter{Range: &DateRange{StartMs: 2_000_000, EndMs: 3_000_000}}, 2},
		{"range drops undated message", MessageFilter{Range: &DateRange{StartMs: 0, EndMs: 1_000_000}}, 1},
		{"open start keeps undated for aggregates", MessageFilter{Range: &DateRange{StartMs: 0, EndMs: 1_000_000}, UndatedAsEpoch: true}, 2},
		{"wide range keeps only dated messages", MessageFilter{Range: &DateRange{StartMs: 0, EndMs: 5_000_000}}, 3},
		{"conjunction", MessageFilter{ContactID: "111@c.us", HasMedia: boolPtr(false), Search: "third"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, FilterMessages(msgs, tt.filter), tt.want)
		})
	}
}

func TestMessageFilter_AddingPredicatesNeverGrows(t *testing.T) {
	msgs := messages()
	base := MessageFilter{ContactID: "111@c.us"}
	narrowed := base
	narrowed.Search = "o"
	narrower := narrowed
	narrower.FromMe = boolPtr(false)

	a := len(FilterMessages(msgs, base))
	b := len(FilterMessages(msgs, narrowed))
	c := len(FilterMessages(msgs, narrower))
	assert.LessOrEqual(t, b, a)
	assert.LessOrEqual(t, c, b)
}

func TestFilterContacts(t *testing.T) {
	records := []models.Record{
		{"id": "628111@c.us", "name": "Budi"},
		{"id": "628222@c.us", "name": "Sari", "phone": "0812999"},
		{"id": "628333@c.us"},
	}
	assert.Len(t, FilterContacts(records, ""), 3)
	assert.Len(t, FilterContacts(records, "budi"), 1)
	assert.Len(t, FilterContacts(records, "628"), 3)
	assert.Len(t, FilterContacts(records, "0812"), 1)
	assert.Empty(t, FilterContacts(records, "zzz"))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05.250Z", time.Date(2024, 1, 2, 3, 4, 5, 250e6, time.UTC)},
		{"2024-01-02T03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T10:04:05+07:00", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseDate("yesterday")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestParseDateRange(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	r, err := ParseDateRange("", "", now)
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = ParseDateRange("2024-01-01", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), r.StartMs)
	assert.Equal(t, now.UnixMilli(), r.EndMs)

	r, err = ParseDateRange("", "2024-01-01", now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.StartMs)

	_, err = ParseDateRange("2024-02-01", "2024-01-01", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = ParseDateRange("bad", "", now)
	assert.Error(t, err)
}

func TestParseFlag(t *testing.T) {
	assert.Nil(t, ParseFlag("true", false))
	assert.True(t, *ParseFlag("true", true))
	assert.False(t, *ParseFlag("1", true))
	assert.False(t, *ParseFlag("", true))
}

func TestSorter_Numeric(t *testing.T) {
	records := []models.Record{
		{"id": "a", "timestamp": json.Number("30")},
		{"id": "b"},
		{"id": "c", "timestamp": json.Number("5")},
		{"id": "d", "timestamp": "100"},
	}
	NewSorter("en").Sort(records, "timestamp", Asc)

	ids := []string{}
	for _, r := range records {
		ids = append(ids, r.String("id"))
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}

func TestSorter_NumericValuesInOtherFields(t *testing.T) {
	records := []models.Record{{"n": 10}, {"n": 9}, {"n": 100}}
	NewSorter("en").Sort(records, "n", Asc)
	assert.Equal(t, []any{9, 10, 100}, []any{records[0]["n"], records[1]["n"], records[2]["n"]})
}

func TestSorter_Collation(t *testing.T) {
	records := []models.Record{{"name": "bob"}, {"name": "Álvaro"}, {"name": "alice"}, {"name": "Carl"}}
	NewSorter("en").Sort(records, "name", Asc)

	names := []string{}
	for _, r := range records {
		names = append(names, r.String("name"))
	}
	assert.Equal(t, []string{"alice", "Álvaro", "bob", "Carl"}, names)
}

func TestSorter_StableBothDirections(t *testing.T) {
	build := func() []models.Record {
		out := []models.Record{}
		for i := 0; i < 6; i++ {
			out = append(out, models.Record{"seq": i, "group": fmt.Sprintf("g%d", i%2)})
		}
		return out
	}

	for _, order := range []Order{Asc, Desc} {
		records := build()
		NewSorter("en").Sort(records, "group", order)

		var lastSeq = map[string]int{"g0": -1, "g1": -1}
		for _, r := range records {
			g := r.String("group")
			seq := int(r.Int64("seq"))
			assert.Greater(t, seq, lastSeq[g], "ties keep input order for %s", order)
			lastSeq[g] = seq
		}
	}

	desc := build()
	NewSorter("en").Sort(desc, "group", Desc)
	assert.Equal(t, "g1", desc[0].String("group"))
}

func TestSorter_Messages(t *testing.T) {
	msgs := messages()
	NewSorter("en").SortMessages(msgs, "timestamp", Desc)
	assert.Equal(t, int64(3000), msgs[0].Timestamp)
	assert.Equal(t, int64(0), msgs[3].Timestamp)
}

func TestNewSorter_UnknownLocale(t *testing.T) {
	s := NewSorter("not a locale!")
	records := []models.Record{{"name": "b"}, {"name": "a"}}
	s.Sort(records, "name", Asc)
	assert.Equal(t, "a", records[0].String("name"))
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, Desc, ParseOrder("DESC"))
	assert.Equal(t, Asc, ParseOrder("asc"))
	assert.Equal(t, Asc, ParseOrder("sideways"))
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		limit, offset string
		want          Page
	}{
		{"", "", Page{Limit: 100, Offset: 0}},
		{"0", "0", Page{Limit: 100, Offset: 0}},
		{"abc", "-3", Page{Limit: 100, Offset: 0}},
		{"-5", "7", Page{Limit: 1, Offset: 7}},
		{"5000", "", Page{Limit: 1000, Offset: 0}},
		{"25", "50", Page{Limit: 25, Offset: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.limit+"/"+tt.offset, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePage(tt.limit, tt.offset, 100, 1000))
		})
	}
}

func TestPaginate_Meta(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	page, meta := Paginate(items, Page{Limit: 10, Offset: 10})
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, page)
	assert.Equal(t, 25, meta.Total)
	assert.Equal(t, 10, meta.Count)
	assert.True(t, meta.HasMore)
	assert.Equal(t, 2, meta.CurrentPage)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasPrevPage)
	require.NotNil(t, meta.NextOffset)
	assert.Equal(t, 20, *meta.NextOffset)
	assert.Equal(t, 0, meta.PrevOffset)

	page, meta = Paginate(items, Page{Limit: 10, Offset: 20})
	assert.Len(t, page, 5)
	assert.False(t, meta.HasMore)
	assert.Nil(t, meta.NextOffset)

	page, meta = Paginate(items, Page{Limit: 10, Offset: 100})
	assert.Empty(t, page)
	assert.Equal(t, 0, meta.Count)
}

func TestPaginate_Property(t *testing.T) {
	for total := 0; total <= 30; total += 7 {
		items := make([]int, total)
		for limit := 1; limit <= 12; limit += 5 {
			for offset := 0; offset <= total+3; offset += 4 {
				page, meta := Paginate(items, Page{Limit: limit, Offset: offset})
				want := total - offset
				if want < 0 {
					want = 0
				}
				if want > limit {
					want = limit
				}
				assert.Len(t, page, want)
				assert.Equal(t, offset+limit < total, meta.HasMore)
			}
		}
	}
}

func TestPaginate_HugeOffsetDoesNotOverflow(t *testing.T) {
	items := []int{1, 2, 3}
	tests := []struct {
		name   string
		limit  string
		offset string
	}{
		{"max offset", "100", "9223372036854775807"},
		{"max offset single item pages", "1", "9223372036854775807"},
		{"offset past total", "1000", "9223372036854775000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePage(tt.limit, tt.offset, 100, 1000)
			page, meta := Paginate(items, p)

			assert.Empty(t, page)
			assert.False(t, meta.HasMore)
			assert.False(t, meta.HasNextPage)
			assert.Nil(t, meta.NextOffset)
			assert.Positive(t, meta.CurrentPage)
			assert.Equal(t, (3-1)/p.Limit+1, meta.TotalPages)
			assert.GreaterOrEqual(t, meta.PrevOffset, 0)
		})
	}
}

func TestPaginate_NextOffsetSerializesNull(t *testing.T) {
	_, meta := Paginate([]int{1}, Page{Limit: 10})
	b, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"next_offset":null`)
}

func TestMergeAs(t *testing.T) {
	merged := MergeAs([]Blob{{Name: "a.json", Records: []models.Record{{"id": "1", "source": "api_v1"}}}}, models.FieldSourceFile)
	require.Len(t, merged, 1)
	assert.Equal(t, "a.json", merged[0]["source_file"])
	assert.Equal(t, "api_v1", merged[0]["source"])
}
