package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/errors"
	"whatsdata/internal/models"
	"whatsdata/internal/query"
	"whatsdata/internal/stats"
	"whatsdata/internal/store"
	"whatsdata/internal/validation"

	"github.com/sirupsen/logrus"
)

// MessageQuery carries the raw listing parameters. HasMedia and FromMe are
// nil when the parameter was absent.
type MessageQuery struct {
	File      string
	ContactID string
	FromUser  string
	ToUser    string
	Fields    string
	Search    string
	Limit     string
	Offset    string
	StartDate string
	EndDate   string
	HasMedia  *bool
	FromMe    *bool
	Sort      string
	Order     string
}

// MessageFilters echoes the applied predicates
type MessageFilters struct {
	ContactID *string `json:"contact_id"`
	FromUser  *string `json:"from_user"`
	ToUser    *string `json:"to_user"`
	HasMedia  *bool   `json:"has_media"`
	FromMe    *bool   `json:"from_me"`
}

// RequestedRange echoes the requested date bounds
type RequestedRange struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

// MessageList is one page of messages plus listing metadata
type MessageList struct {
	Messages   []models.Record
	Total      int
	Source     string
	Fields     []string
	Search     string
	Filters    MessageFilters
	DateRange  RequestedRange
	Page       query.Meta
	Statistics stats.BasicStats
	Skipped    []SkippedFile
}

// MessageServiceInterface is the message API used by the HTTP layer
type MessageServiceInterface interface {
	List(ctx context.Context, q MessageQuery) (*MessageList, error)
	Create(ctx context.Context, messages []models.Record) (*SaveResult, error)
}

// MessageService lists and appends message blobs
type MessageService struct {
	opts   Options
	loader loader
	sorter *query.Sorter
}

// NewMessageService creates a message service over opts.Store
func NewMessageService(opts Options) *MessageService {
	opts = opts.withDefaults()
	return &MessageService{
		opts:   opts,
		loader: loader{store: opts.Store, logger: opts.Logger},
		sorter: query.NewSorter(opts.Query.SortLocale),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BuildFilter turns raw parameters into a filter; bad dates are input errors
func (q MessageQuery) BuildFilter(now time.Time) (query.MessageFilter, error) {
	f := query.MessageFilter{
		ContactID: strings.TrimSpace(q.ContactID),
		FromUser:  strings.TrimSpace(q.FromUser),
		ToUser:    strings.TrimSpace(q.ToUser),
		Search:    strings.TrimSpace(q.Search),
		HasMedia:  q.HasMedia,
		FromMe:    q.FromMe,
	}
	rng, err := query.ParseDateRange(strings.TrimSpace(q.StartDate), strings.TrimSpace(q.EndDate), now)
	if err != nil {
		return query.MessageFilter{}, err
	}
	f.Range = rng
	return f, nil
}

// List merges, filters, sorts, paginates and projects messages. The
// statistics cover the whole filtered set, not just the page.
func (ms *MessageService) List(ctx context.Context, q MessageQuery) (*MessageList, error) {
	filter, err := q.BuildFilter(ms.opts.Now())
	if err != nil {
		return nil, err
	}

	col, err := ms.loader.load(ctx, store.KindMessages, q.File, models.FieldSource, false)
	if err != nil {
		return nil, err
	}

	msgs := query.FilterMessages(models.NormalizeMessages(col.Records), filter)

	sortField := strings.TrimSpace(q.Sort)
	if sortField == "" {
		sortField = models.FieldTimestamp
	}
	ms.sorter.SortMessages(msgs, sortField, query.ParseOrder(q.Order))

	page := query.ParsePage(q.Limit, q.Offset, ms.opts.Query.DefaultLimit, ms.opts.Query.MaxLimit)
	window, meta := query.Paginate(msgs, page)

	raws := make([]models.Record, len(window))
	for i, m := range window {
		raws[i] = m.Raw
	}
	fields := query.ParseFields(q.Fields, models.DefaultMessageFields)

	return &MessageList{
		Messages: query.ProjectAll(raws, fields),
		Total:    meta.Total,
		Source:   col.Source,
		Fields:   fields,
		Search:   filter.Search,
		Filters: MessageFilters{
			ContactID: optional(filter.ContactID),
			FromUser:  optional(filter.FromUser),
			ToUser:    optional(filter.ToUser),
			HasMedia:  q.HasMedia,
			FromMe:    q.FromMe,
		},
		DateRange:  RequestedRange{StartDate: optional(q.StartDate), EndDate: optional(q.EndDate)},
		Page:       meta,
		Statistics: stats.Basic(msgs),
		Skipped:    col.Skipped,
	}, nil
}

// or returns v when it is truthy, def otherwise
func or(r models.Record, key string, def any) any {
	if r.Truthy(key) {
		return r[key]
	}
	return def
}

// Create appends valid messages to the default messages blob, filling the
// canonical field set. Entries without from, to and content or media are dropped.
func (ms *MessageService) Create(ctx context.Context, messages []models.Record) (*SaveResult, error) {
	now := ms.opts.Now()
	nowMs := now.UnixMilli()

	valid := make([]models.Record, 0, len(messages))
	for _, m := range messages {
		if m == nil || validation.ValidateNewMessage(m) != nil {
			continue
		}
		index := len(valid)

		fromMe := any(false)
		if m.Has(models.FieldFromMe) && m[models.FieldFromMe] != nil {
			fromMe = m[models.FieldFromMe]
		}

		valid = append(valid, models.Record{
			models.FieldID:           or(m, models.FieldID, fmt.Sprintf("%d_%d", nowMs, index)),
			models.FieldFrom:         m[models.FieldFrom],
			models.FieldTo:           m[models.FieldTo],
			models.FieldBody:         or(m, models.FieldBody, or(m, models.FieldMessage, "")),
			models.FieldMessage:      or(m, models.FieldMessage, or(m, models.FieldBody, "")),
			models.FieldTimestamp:    or(m, models.FieldTimestamp, now.Unix()),
			models.FieldFromMe:       fromMe,
			models.FieldSource:       or(m, models.FieldSource, constants.MessageSourceAPI),
			models.FieldHasMedia:     or(m, models.FieldHasMedia, false),
			models.FieldMediaType:    or(m, models.FieldMediaType, nil),
			models.FieldMediaCaption: or(m, models.FieldMediaCaption, nil),
			models.FieldCreatedAt:    nowMs,
			models.FieldDatetime:     models.FormatISOMillis(nowMs),
		})
	}
	if len(valid) == 0 {
		return nil, errors.NewInputError("No valid messages provided. Required: from, to, and body/message or hasMedia")
	}

	file := ms.opts.Storage.MessagesFile
	total, err := ms.opts.Store.Append(ctx, store.DirOutput, file, valid)
	if err != nil {
		return nil, err
	}

	ms.opts.Logger.WithFields(LogFields(ctx, logrus.Fields{
		LogFieldOperation: "create_messages",
		LogFieldFileName:  file,
		LogFieldCount:     len(valid),
		LogFieldTotal:     total,
	})).Info("Saved new messages")

	return &SaveResult{Saved: valid, Total: total, Rejected: len(messages) - len(valid), File: file}, nil
}
