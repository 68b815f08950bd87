// Package stats computes the aggregates served by the statistics endpoint.
// All functions are pure over already loaded collections.
package stats

import (
	"sort"
	"time"
	"unicode/utf8"

	"whatsdata/internal/constants"
	"whatsdata/internal/models"
)

const millisPerDay = 24 * 60 * 60 * 1000

// DayNames labels the day-of-week histogram, Sunday first
var DayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// UnknownDay is reported as the peak day when no message has a timestamp
const UnknownDay = "Unknown"

// Options tunes time bucketing and optional output
type Options struct {
	Location       *time.Location
	IncludeDetails bool
	RecentLimit    int
	ResponseGap    time.Duration
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) recentLimit() int {
	if o.RecentLimit <= 0 {
		return constants.DefaultRecentMessages
	}
	return o.RecentLimit
}

// TimeRange spans the dated messages
type TimeRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
	SpanDays int    `json:"span_days"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// LengthStats summarizes body lengths in characters
type LengthStats struct {
	Average int     `json:"average"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	Median  float64 `json:"median"`
}

type MessageDerived struct {
	AverageMessagesPerDay int    `json:"average_messages_per_day"`
	MediaMessageRate      int    `json:"media_message_rate"`
	SentMessageRate       int    `json:"sent_message_rate"`
	PeakHour              *int   `json:"peak_hour"`
	PeakDay               string `json:"peak_day"`
}

// RecentMessage is the compact form listed with detailed statistics
type RecentMessage struct {
	ID        string `json:"id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Preview   string `json:"preview"`
	HasMedia  bool   `json:"hasMedia"`
	MediaType string `json:"mediaType,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Datetime  string `json:"datetime"`
	FromMe    bool   `json:"fromMe"`
}

type MessageStats struct {
	TotalMessages    int             `json:"total_messages"`
	MediaMessages    int             `json:"media_messages"`
	TextMessages     int             `json:"text_messages"`
	SentMessages     int             `json:"sent_messages"`
	ReceivedMessages int             `json:"received_messages"`
	UniqueSenders    int             `json:"unique_senders"`
	UniqueReceivers  int             `json:"unique_receivers"`
	UniqueContacts   int             `json:"unique_contacts"`
	SourceFiles      []string        `json:"source_files"`
	TimeRange        *TimeRange      `json:"time_range,omitempty"`
	ActivityByHour   []int           `json:"activity_by_hour"`
	ActivityByDay    []DayCount      `json:"activity_by_day"`
	ActivityByMonth  []MonthCount    `json:"activity_by_month"`
	MessageLengths   *LengthStats    `json:"message_lengths,omitempty"`
	MediaTypes       map[string]int  `json:"media_types,omitempty"`
	RecentMessages   []RecentMessage `json:"recent_messages,omitempty"`
	Derived          MessageDerived  `json:"derived"`
}

// Messages aggregates a message collection. Histograms only count messages
// with a positive timestamp, bucketed in opts.Location.
func Messages(msgs []models.Message, opts Options) MessageStats {
	loc := opts.location()
	s := MessageStats{
		TotalMessages:   len(msgs),
		SourceFiles:     []string{},
		ActivityByHour:  make([]int, 24),
		ActivityByDay:   make([]DayCount, 7),
		ActivityByMonth: []MonthCount{},
	}
	for i, name := range DayNames {
		s.ActivityByDay[i] = DayCount{Day: name}
	}

	senders := make(map[string]struct{})
	receivers := make(map[string]struct{})
	parties := make(map[string]struct{})
	sources := make(map[string]struct{})
	months := make(map[string]int)
	mediaTypes := make(map[string]int)
	var lengths []int
	var minMs, maxMs int64
	dated := 0

	for _, m := range msgs {
		if m.HasMedia {
			s.MediaMessages++
			mediaType := m.MediaType
			if mediaType == "" {
				mediaType = "unknown"
			}
			mediaTypes[mediaType]++
		} else {
			s.TextMessages++
		}
		if m.FromMe {
			s.SentMessages++
		} else {
			s.ReceivedMessages++
		}

		if m.From != "" {
			senders[m.From] = struct{}{}
			parties[m.From] = struct{}{}
		}
		if m.To != "" {
			receivers[m.To] = struct{}{}
			parties[m.To] = struct{}{}
		}
		if m.SourceFile != "" {
			sources[m.SourceFile] = struct{}{}
		}

		if n := utf8.RuneCountInString(m.Body); n > 0 {
			lengths = append(lengths, n)
		}

		if m.Timestamp <= 0 {
			continue
		}
		ms := m.UnixMilli()
		if dated == 0 || ms < minMs {
			minMs = ms
		}
		if dated == 0 || ms > maxMs {
			maxMs = ms
		}
		dated++

		t := time.UnixMilli(ms).In(loc)
		s.ActivityByHour[t.Hour()]++
		s.ActivityByDay[int(t.Weekday())].Count++
		months[t.Format("2006-01")]++
	}

	s.UniqueSenders = len(senders)
	s.UniqueReceivers = len(receivers)
	s.UniqueContacts = len(parties)
	for src := range sources {
		s.SourceFiles = append(s.SourceFiles, src)
	}
	sort.Strings(s.SourceFiles)

	if dated > 0 {
		s.TimeRange = &TimeRange{
			Earliest: models.FormatISOMillis(minMs),
			Latest:   models.FormatISOMillis(maxMs),
			SpanDays: int((maxMs - minMs + millisPerDay - 1) / millisPerDay),
		}
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t, _ := time.Parse("2006-01", k)
		s.ActivityByMonth = append(s.ActivityByMonth, MonthCount{Month: t.Format("Jan 2006"), Count: months[k]})
	}

	if len(lengths) > 0 {
		lo, hi, sum := minMaxSum(lengths)
		median, _ := Median(lengths)
		s.MessageLengths = &LengthStats{
			Average: roundHalfUp(float64(sum) / float64(len(lengths))),
			Min:     lo,
			Max:     hi,
			Median:  median,
		}
	}
	if s.MediaMessages > 0 {
		s.MediaTypes = mediaTypes
	}

	if opts.IncludeDetails {
		s.RecentMessages = recentMessages(msgs, opts.recentLimit())
	}

	s.Derived = MessageDerived{
		MediaMessageRate: percent(s.MediaMessages, s.TotalMessages),
		SentMessageRate:  percent(s.SentMessages, s.TotalMessages),
		PeakDay:          peakDay(s.ActivityByDay),
	}
	if s.TimeRange != nil && s.TimeRange.SpanDays > 0 {
		s.Derived.AverageMessagesPerDay = roundHalfUp(float64(s.TotalMessages) / float64(s.TimeRange.SpanDays))
	}
	if idx := argMax(s.ActivityByHour); idx >= 0 {
		s.Derived.PeakHour = &idx
	}
	return s
}

// peakDay keeps the first day whose count strictly exceeds all earlier ones
func peakDay(days []DayCount) string {
	best := DayCount{Day: UnknownDay}
	for _, d := range days {
		if d.Count > best.Count {
			best = d
		}
	}
	return best.Day
}

// previewLength bounds the preview text of recent messages, in runes
const previewLength = 100

func recentMessages(msgs []models.Message, limit int) []RecentMessage {
	sorted := make([]models.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp > sorted[j].Timestamp })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]RecentMessage, len(sorted))
	for i, m := range sorted {
		out[i] = RecentMessage{
			ID:        m.ID,
			From:      m.From,
			To:        m.To,
			Body:      m.Text(),
			Preview:   m.Preview(previewLength),
			HasMedia:  m.HasMedia,
			MediaType: m.MediaType,
			Timestamp: m.Timestamp,
			Datetime:  models.FormatISOMillis(m.UnixMilli()),
			FromMe:    m.FromMe,
		}
	}
	return out
}

// DateBounds is the earliest and latest message time, null when nothing is dated
type DateBounds struct {
	Earliest *string `json:"earliest"`
	Latest   *string `json:"latest"`
}

// BasicStats are the counts attached to a message listing
type BasicStats struct {
	TotalMessages    int        `json:"total_messages"`
	MediaMessages    int        `json:"media_messages"`
	TextMessages     int        `json:"text_messages"`
	SentMessages     int        `json:"sent_messages"`
	ReceivedMessages int        `json:"received_messages"`
	UniqueContacts   int        `json:"unique_contacts"`
	DateRange        DateBounds `json:"date_range"`
}

// Basic computes listing counts; unique contacts counts the sender, or the
// recipient when the sender is empty.
func Basic(msgs []models.Message) BasicStats {
	b := BasicStats{TotalMessages: len(msgs)}
	contacts := make(map[string]struct{})
	var lo, hi int64
	dated := false

	for _, m := range msgs {
		if m.HasMedia {
			b.MediaMessages++
		} else {
			b.TextMessages++
		}
		if m.FromMe {
			b.SentMessages++
		} else {
			b.ReceivedMessages++
		}
		party := m.From
		if party == "" {
			party = m.To
		}
		if party != "" {
			contacts[party] = struct{}{}
		}
		if m.Timestamp > 0 {
			if !dated || m.Timestamp < lo {
				lo = m.Timestamp
			}
			if !dated || m.Timestamp > hi {
				hi = m.Timestamp
			}
			dated = true
		}
	}
	b.UniqueContacts = len(contacts)
	if dated {
		earliest := models.FormatISOMillis(lo * 1000)
		latest := models.FormatISOMillis(hi * 1000)
		b.DateRange = DateBounds{Earliest: &earliest, Latest: &latest}
	}
	return b
}
