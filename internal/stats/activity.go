package stats

import (
	"sort"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/models"
)

// Engagement levels by activity score
const (
	EngagementHigh    = "high"
	EngagementMedium  = "medium"
	EngagementLow     = "low"
	EngagementMinimal = "minimal"
)

type ConversationPatterns struct {
	MostActiveHour    *int    `json:"most_active_hour"`
	MostActiveDay     *string `json:"most_active_day"`
	ConversationRatio *int    `json:"conversation_ratio"`
}

// ResponseTimes measures how fast own messages answer incoming ones
type ResponseTimes struct {
	AverageResponseTimeMinutes float64 `json:"average_response_time_minutes"`
	FastestResponseMinutes     float64 `json:"fastest_response_minutes"`
	SlowestResponseMinutes     float64 `json:"slowest_response_minutes"`
	ResponseRatePercentage     int     `json:"response_rate_percentage"`
	Responses                  int     `json:"responses"`
}

type ActivityStats struct {
	ActivityScore        int                  `json:"activity_score"`
	EngagementLevel      string               `json:"engagement_level"`
	ConversationPatterns ConversationPatterns `json:"conversation_patterns"`
	ResponseTimes        ResponseTimes        `json:"response_times"`
}

// ActivityScore is min(100, round(100*unique/total + 50*media/total)), 0 for no messages
func ActivityScore(total, uniqueContacts, media int) int {
	if total == 0 {
		return 0
	}
	score := roundHalfUp(100*float64(uniqueContacts)/float64(total) + 50*float64(media)/float64(total))
	if score > 100 {
		return 100
	}
	return score
}

// EngagementLevel maps a score to its band
func EngagementLevel(score int) string {
	switch {
	case score >= 80:
		return EngagementHigh
	case score >= 50:
		return EngagementMedium
	case score >= 20:
		return EngagementLow
	default:
		return EngagementMinimal
	}
}

// Activity derives engagement figures from message statistics and the
// messages they were computed from.
func Activity(ms MessageStats, msgs []models.Message, opts Options) ActivityStats {
	score := ActivityScore(ms.TotalMessages, ms.UniqueContacts, ms.MediaMessages)

	patterns := ConversationPatterns{MostActiveHour: ms.Derived.PeakHour}
	if ms.TotalMessages > 0 {
		day := ms.Derived.PeakDay
		patterns.MostActiveDay = &day
	}
	if ms.SentMessages > 0 && ms.ReceivedMessages > 0 {
		ratio := roundHalfUp(float64(ms.SentMessages) / float64(ms.ReceivedMessages) * 100)
		patterns.ConversationRatio = &ratio
	}

	return ActivityStats{
		ActivityScore:        score,
		EngagementLevel:      EngagementLevel(score),
		ConversationPatterns: patterns,
		ResponseTimes:        Responses(msgs, opts.ResponseGap),
	}
}

// Responses pairs each incoming message with the next own message in the
// same conversation. A reply later than maxGap does not count; a zero maxGap
// uses the default window. Only dated messages take part.
func Responses(msgs []models.Message, maxGap time.Duration) ResponseTimes {
	if maxGap <= 0 {
		maxGap = constants.DefaultResponseGapMins * time.Minute
	}

	dated := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp > 0 {
			dated = append(dated, m)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].Timestamp < dated[j].Timestamp })

	// pending holds the oldest unanswered incoming timestamp per counterpart
	pending := make(map[string]int64)
	incoming := 0
	var gaps []float64

	for _, m := range dated {
		peer := m.From
		if m.FromMe {
			peer = m.To
		}
		if peer == "" {
			continue
		}

		if !m.FromMe {
			incoming++
			if _, waiting := pending[peer]; !waiting {
				pending[peer] = m.Timestamp
			}
			continue
		}

		since, waiting := pending[peer]
		if !waiting {
			continue
		}
		delete(pending, peer)
		gap := time.Duration(m.Timestamp-since) * time.Second
		if gap > maxGap {
			continue
		}
		gaps = append(gaps, gap.Minutes())
	}

	rt := ResponseTimes{Responses: len(gaps)}
	if len(gaps) == 0 {
		return rt
	}
	lo, hi, sum := gaps[0], gaps[0], 0.0
	for _, g := range gaps {
		sum += g
		if g < lo {
			lo = g
		}
		if g > hi {
			hi = g
		}
	}
	rt.AverageResponseTimeMinutes = roundTo(sum/float64(len(gaps)), 1)
	rt.FastestResponseMinutes = roundTo(lo, 1)
	rt.SlowestResponseMinutes = roundTo(hi, 1)
	rt.ResponseRatePercentage = percent(len(gaps), incoming)
	return rt
}
