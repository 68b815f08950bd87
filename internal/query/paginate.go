package query

import (
	"math"
	"strconv"
	"strings"

	"whatsdata/internal/constants"
)

// Page is a validated limit/offset pair
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset. An empty, zero or unparseable limit
// becomes def; the result is clamped to [1, maxLimit]. Offset is clamped at 0.
func ParsePage(limitRaw, offsetRaw string, def, maxLimit int) Page {
	if def <= 0 {
		def = constants.DefaultPageLimit
	}
	if maxLimit <= 0 {
		maxLimit = constants.MaxPageLimit
	}

	limit, err := strconv.Atoi(strings.TrimSpace(limitRaw))
	if err != nil || limit == 0 {
		limit = def
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset, err := strconv.Atoi(strings.TrimSpace(offsetRaw))
	if err != nil || offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// Meta describes one page of a listing
type Meta struct {
	Total       int  `json:"total"`
	Count       int  `json:"count"`
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	HasMore     bool `json:"hasMore"`
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
	NextOffset  *int `json:"next_offset"`
	PrevOffset  int  `json:"prev_offset"`
}

// Paginate returns the window [offset, offset+limit) of items and its metadata
func Paginate[T any](items []T, p Page) ([]T, Meta) {
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	total := len(items)
	start := p.Offset
	if start > total {
		start = total
	}
	end := total
	if p.Limit < total-start {
		end = start + p.Limit
	}
	window := items[start:end]

	// offset+limit is only formed once it is known to be below total
	meta := Meta{
		Total:       total,
		Count:       len(window),
		Limit:       p.Limit,
		Offset:      p.Offset,
		HasMore:     p.Offset < total-p.Limit,
		CurrentPage: p.Offset / p.Limit,
		HasPrevPage: p.Offset > 0,
		PrevOffset:  max(0, p.Offset-p.Limit),
	}
	if meta.CurrentPage < math.MaxInt {
		meta.CurrentPage++
	}
	if total > 0 {
		meta.TotalPages = (total-1)/p.Limit + 1
	}
	meta.HasNextPage = meta.HasMore
	if meta.HasMore {
		next := p.Offset + p.Limit
		meta.NextOffset = &next
	}
	return window, meta
}
