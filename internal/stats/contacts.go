package stats

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"whatsdata/internal/models"
)

// Phone formats reported in the distribution
const (
	PhoneFormatIndonesia     = "indonesia"
	PhoneFormatInternational = "international"
)

// UniqueContact is one id after merging all sources
type UniqueContact struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	LastMessage string   `json:"last_message"`
	FirstSeen   int64    `json:"first_seen,omitempty"`
	LastActive  int64    `json:"last_active,omitempty"`
	Sources     []string `json:"sources"`
}

type ContactStats struct {
	TotalContacts           int            `json:"total_contacts"`
	ActiveContacts          int            `json:"active_contacts"`
	ContactsWithNames       int            `json:"contacts_with_names"`
	IndividualContacts      int            `json:"individual_contacts"`
	GroupContacts           int            `json:"group_contacts"`
	ContactSources          []string       `json:"contact_sources"`
	ContactsBySource        map[string]int `json:"contacts_by_source"`
	AverageNameLength       int            `json:"average_name_length"`
	PhoneFormatDistribution map[string]int `json:"phone_format_distribution"`
	PhoneDigitLengths       map[string]int `json:"phone_digit_lengths"`
}

// Dedupe merges contacts by id in input order. The first occurrence supplies
// the identity fields; every later occurrence only adds its source. Records
// without an id are skipped.
func Dedupe(contacts []models.Contact) []UniqueContact {
	index := make(map[string]int)
	var out []UniqueContact

	for _, c := range contacts {
		if c.ID == "" {
			continue
		}
		if i, ok := index[c.ID]; ok {
			out[i].Sources = append(out[i].Sources, c.SourceFile)
			continue
		}

		firstSeen := c.CreatedAt
		if firstSeen == 0 {
			firstSeen = c.Timestamp
		}
		lastActive := c.UpdatedAt
		if lastActive == 0 {
			lastActive = c.Timestamp
		}
		index[c.ID] = len(out)
		out = append(out, UniqueContact{
			ID:          c.ID,
			Name:        c.Name,
			DisplayName: c.DisplayName(),
			LastMessage: c.LastMessage,
			FirstSeen:   firstSeen,
			LastActive:  lastActive,
			Sources:     []string{c.SourceFile},
		})
	}
	return out
}

// Contacts aggregates a contact collection tagged with source_file
func Contacts(contacts []models.Contact) ContactStats {
	unique := Dedupe(contacts)
	s := ContactStats{
		TotalContacts:           len(unique),
		ContactSources:          []string{},
		ContactsBySource:        make(map[string]int),
		PhoneFormatDistribution: make(map[string]int),
		PhoneDigitLengths:       make(map[string]int),
	}

	sources := make(map[string]struct{})
	nameTotal, named := 0, 0

	for _, u := range unique {
		c := models.Contact{Name: u.Name, LastMessage: u.LastMessage}
		if c.IsActive() {
			s.ActiveContacts++
		}
		if c.HasName() {
			s.ContactsWithNames++
		}
		switch {
		case models.IsGroupID(u.ID):
			s.GroupContacts++
		case models.IsIndividualID(u.ID):
			s.IndividualContacts++
		}
		if u.Name != "" {
			nameTotal += utf8.RuneCountInString(u.Name)
			named++
		}

		for _, src := range u.Sources {
			sources[src] = struct{}{}
			s.ContactsBySource[src]++
		}

		phone := models.PhoneFromID(u.ID)
		if phone == "" {
			continue
		}
		digits := models.NormalizePhone(phone)
		format := PhoneFormatInternational
		if strings.HasPrefix(digits, "62") {
			format = PhoneFormatIndonesia
		}
		s.PhoneFormatDistribution[format]++
		s.PhoneDigitLengths[strconv.Itoa(len(digits))]++
	}

	for src := range sources {
		s.ContactSources = append(s.ContactSources, src)
	}
	sort.Strings(s.ContactSources)

	if named > 0 {
		s.AverageNameLength = roundHalfUp(float64(nameTotal) / float64(named))
	}
	return s
}
