package service

import (
	"context"
	"strings"
	"time"

	"whatsdata/internal/cache"
	"whatsdata/internal/errors"
	"whatsdata/internal/metrics"
	"whatsdata/internal/models"
	"whatsdata/internal/query"
	"whatsdata/internal/stats"
	"whatsdata/internal/store"
	"whatsdata/internal/tracing"
	"whatsdata/internal/validation"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Statistics types
const (
	StatsSummary  = "summary"
	StatsContacts = "contacts"
	StatsMessages = "messages"
	StatsFiles    = "files"
	StatsActivity = "activity"
)

// StatsQuery carries the raw statistics parameters. DateRange is a JSON
// object {"start": ..., "end": ...}.
type StatsQuery struct {
	Type           string `json:"type"`
	File           string `json:"file"`
	ContactID      string `json:"contact_id"`
	DateRange      string `json:"date_range"`
	IncludeDetails bool   `json:"include_details"`
}

// StatsFilters echoes the applied statistics filters
type StatsFilters struct {
	File           *string          `json:"file"`
	ContactID      *string          `json:"contact_id"`
	DateRange      *query.DateRange `json:"date_range"`
	IncludeDetails bool             `json:"include_details"`
}

// StatsResult is one computed aggregate
type StatsResult struct {
	Type        string
	Data        any
	Filters     StatsFilters
	GeneratedAt time.Time
	Cached      bool
}

// StatsServiceInterface is the statistics API used by the HTTP layer
type StatsServiceInterface interface {
	Compute(ctx context.Context, q StatsQuery) (*StatsResult, error)
}

// StatsService computes aggregates over the stored collections
type StatsService struct {
	opts   Options
	loader loader
	cache  *cache.Cache
	loc    *time.Location
}

// NewStatsService creates a statistics service. A nil cache disables
// caching; a cache is cleared on every store mutation.
func NewStatsService(opts Options, c *cache.Cache) *StatsService {
	opts = opts.withDefaults()
	s := &StatsService{
		opts:   opts,
		loader: loader{store: opts.Store, logger: opts.Logger},
		cache:  c,
		loc:    opts.location(),
	}
	if c != nil {
		opts.Store.Subscribe(func(store.Event) { c.Clear() })
	}
	return s
}

type rangeParam struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// parseStatsRange reads the JSON date_range parameter
func parseStatsRange(raw string, now time.Time) (*query.DateRange, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var p rangeParam
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, errors.NewInputError("date_range must be a JSON object with start and end").
			WithContext("date_range", raw)
	}
	return query.ParseDateRange(strings.TrimSpace(p.Start), strings.TrimSpace(p.End), now)
}

func (ss *StatsService) statsOptions(include bool) stats.Options {
	return stats.Options{
		Location:       ss.loc,
		IncludeDetails: include,
		RecentLimit:    ss.opts.Stats.RecentMessages,
		ResponseGap:    time.Duration(ss.opts.Stats.ResponseGapMins) * time.Minute,
	}
}

// Compute returns the aggregate named by q.Type, serving from the cache when possible
func (ss *StatsService) Compute(ctx context.Context, q StatsQuery) (_ *StatsResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "stats.compute")
	defer func() { tracing.EndSpan(span, err) }()

	q.Type = strings.TrimSpace(q.Type)
	if q.Type == "" {
		q.Type = StatsSummary
	}
	q.File = strings.TrimSpace(q.File)
	q.ContactID = strings.TrimSpace(q.ContactID)
	if err := validation.ValidateStatsType(q.Type); err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.AttrStatsType.String(q.Type))

	rng, err := parseStatsRange(q.DateRange, ss.opts.Now())
	if err != nil {
		return nil, err
	}

	key := cache.Key("stats", q)
	if ss.cache != nil {
		if v, ok := ss.cache.Get(key); ok {
			metrics.ObserveCache(true)
			span.SetAttributes(tracing.AttrStatsCached.Bool(true))
			res := *v.(*StatsResult)
			res.Cached = true
			return &res, nil
		}
		metrics.ObserveCache(false)
	}

	start := time.Now()
	data, err := ss.compute(ctx, q, rng)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.RecordTimer("stats_compute_duration", elapsed, map[string]string{"type": q.Type}, "Statistics computation time")

	res := &StatsResult{
		Type: q.Type,
		Data: data,
		Filters: StatsFilters{
			File:           optional(q.File),
			ContactID:      optional(q.ContactID),
			DateRange:      rng,
			IncludeDetails: q.IncludeDetails,
		},
		GeneratedAt: ss.opts.Now(),
	}
	if ss.cache != nil {
		ss.cache.Set(key, res)
	}

	ss.opts.Logger.WithFields(LogFields(ctx, logrus.Fields{
		LogFieldStatsType: q.Type,
		LogFieldContactID: q.ContactID,
		LogFieldDuration:  elapsed.Milliseconds(),
		LogFieldCacheHit:  false,
	})).Debug("Statistics computed")

	return res, nil
}

func (ss *StatsService) compute(ctx context.Context, q StatsQuery, rng *query.DateRange) (any, error) {
	opts := ss.statsOptions(q.IncludeDetails)

	switch q.Type {
	case StatsContacts:
		contacts, err := ss.contacts(ctx, q.File)
		if err != nil {
			return nil, err
		}
		return stats.Contacts(contacts), nil

	case StatsMessages:
		msgs, err := ss.messages(ctx, q.File, q.ContactID, rng)
		if err != nil {
			return nil, err
		}
		return stats.Messages(msgs, opts), nil

	case StatsFiles:
		blobs, err := ss.files(ctx, q.File)
		if err != nil {
			return nil, err
		}
		return stats.Files(blobs, ss.loc), nil

	case StatsActivity:
		msgs, err := ss.messages(ctx, q.File, q.ContactID, rng)
		if err != nil {
			return nil, err
		}
		return stats.Activity(stats.Messages(msgs, opts), msgs, opts), nil
	}

	// summary: a named file narrows only the collection of its own kind
	contactFile, messageFile := "", ""
	switch store.Classify(q.File) {
	case store.KindContacts:
		contactFile = q.File
	case store.KindMessages:
		messageFile = q.File
	default:
		if q.File != "" {
			if _, err := ss.files(ctx, q.File); err != nil {
				return nil, err
			}
		}
	}

	blobs, err := ss.files(ctx, "")
	if err != nil {
		return nil, err
	}
	contacts, err := ss.contacts(ctx, contactFile)
	if err != nil {
		return nil, err
	}
	msgs, err := ss.messages(ctx, messageFile, q.ContactID, rng)
	if err != nil {
		return nil, err
	}
	ms := stats.Messages(msgs, opts)
	return stats.Summarize(stats.Files(blobs, ss.loc), stats.Contacts(contacts), ms, stats.Activity(ms, msgs, opts)), nil
}

func (ss *StatsService) contacts(ctx context.Context, file string) ([]models.Contact, error) {
	col, err := ss.loader.load(ctx, store.KindContacts, file, models.FieldSourceFile, true)
	if err != nil {
		return nil, err
	}
	out := make([]models.Contact, len(col.Records))
	for i, r := range col.Records {
		out[i] = models.NormalizeContact(r)
	}
	return out, nil
}

func (ss *StatsService) messages(ctx context.Context, file, contactID string, rng *query.DateRange) ([]models.Message, error) {
	col, err := ss.loader.load(ctx, store.KindMessages, file, models.FieldSourceFile, true)
	if err != nil {
		return nil, err
	}
	msgs := models.NormalizeMessages(col.Records)
	return query.FilterMessages(msgs, query.MessageFilter{ContactID: contactID, Range: rng, UndatedAsEpoch: true}), nil
}

// files lists blobs across every directory, or the single named one
func (ss *StatsService) files(ctx context.Context, file string) ([]store.BlobMeta, error) {
	if file != "" {
		name, err := sanitizeFile(file)
		if err != nil {
			return nil, err
		}
		meta, err := ss.opts.Store.Locate(ctx, name)
		if err != nil {
			return nil, err
		}
		return []store.BlobMeta{meta}, nil
	}

	var all []store.BlobMeta
	for _, dir := range ss.opts.Store.Dirs() {
		metas, err := ss.opts.Store.List(ctx, dir)
		if err != nil {
			return nil, err
		}
		all = append(all, metas...)
	}
	return all, nil
}
