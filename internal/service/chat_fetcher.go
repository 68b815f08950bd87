package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/metrics"
	"whatsdata/internal/models"
	"whatsdata/internal/retry"
	"whatsdata/internal/security"
	"whatsdata/internal/store"
	"whatsdata/pkg/whatsapp"
	"whatsdata/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"
)

// ChatFetcherOptions configures a ChatFetcher. Client, Store and Chats are
// required; everything else has a default.
type ChatFetcherOptions struct {
	Client   whatsapp.Client
	Store    store.BlobStore
	Chats    []models.FetchChat
	Interval time.Duration
	Hours    *models.EnabledHours
	Location *time.Location
	Retry    retry.BackoffConfig
	// Enabled is consulted before every run; nil means always on
	Enabled func() bool
	Now     func() time.Time
	Logger  *logrus.Logger
}

// FetchResult describes one chat of a fetch run
type FetchResult struct {
	ChatID   string
	Name     string
	File     string
	Messages int
	New      int
	Err      error
}

// ChatFetcher pulls the configured chats from WAHA on an interval and saves
// each batch as a message file in the messagesId directory.
type ChatFetcher struct {
	opts    ChatFetcherOptions
	backoff *retry.Backoff
	logger  *logrus.Logger
	stopCh  chan struct{}

	mu       sync.Mutex
	lastSeen map[string]int64
}

func NewChatFetcher(opts ChatFetcherOptions) *ChatFetcher {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultWAHAIntervalMin * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.BackoffConfig{
			InitialDelay: constants.DefaultWAHARetryDelaySec * time.Second,
			MaxDelay:     constants.DefaultWAHARetryDelaySec * time.Second,
			Multiplier:   1,
			MaxAttempts:  constants.DefaultWAHARetryCount,
		}
	}
	return &ChatFetcher{
		opts:     opts,
		backoff:  retry.NewBackoff(opts.Retry),
		logger:   opts.Logger,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]int64),
	}
}

// Serve fetches once immediately, then on every tick until ctx is cancelled
// or Stop is called.
func (f *ChatFetcher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	f.logger.WithFields(logrus.Fields{
		LogFieldComponent: f.String(),
		"chats":           len(f.opts.Chats),
		"interval":        f.opts.Interval.String(),
	}).Info("Starting WAHA chat fetcher")

	f.checkSession(ctx)
	f.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Chat fetcher context cancelled, stopping")
			return nil
		case <-f.stopCh:
			f.logger.Info("Chat fetcher stop signal received, stopping")
			return suture.ErrDoNotRestart
		case <-ticker.C:
			f.RunOnce(ctx)
		}
	}
}

// Stop ends Serve; it must be called at most once
func (f *ChatFetcher) Stop() {
	close(f.stopCh)
}

func (f *ChatFetcher) String() string {
	return "waha_fetcher"
}

func (f *ChatFetcher) checkSession(ctx context.Context) {
	session, err := f.opts.Client.GetSession(ctx)
	if err != nil {
		entry := f.logger.WithError(err).WithField(LogFieldComponent, f.String())
		var apiErr *types.APIError
		if stderrors.As(err, &apiErr) && apiErr.Hint() != "" {
			entry = entry.WithField("hint", apiErr.Hint())
		}
		entry.Warn("WAHA session check failed")
		return
	}
	if !session.Ready() {
		f.logger.WithFields(logrus.Fields{
			LogFieldComponent: f.String(),
			"session":         session.Name,
			"status":          session.Status,
		}).Warn("WAHA session is not ready")
	}
}

// RunOnce fetches every enabled chat. It returns nil when the fetcher is
// switched off or the current time is outside the enabled hours.
func (f *ChatFetcher) RunOnce(ctx context.Context) []FetchResult {
	if f.opts.Enabled != nil && !f.opts.Enabled() {
		f.logger.Debug("WAHA fetcher disabled, skipping run")
		return nil
	}
	now := f.opts.Now().In(f.opts.Location)
	if !WithinEnabledHours(now, f.opts.Hours) {
		f.logger.WithField("time", now.Format("15:04")).Debug("Outside enabled hours, skipping run")
		return nil
	}

	var results []FetchResult
	for _, chat := range f.opts.Chats {
		if !chat.IsEnabled() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		res := f.fetchChat(ctx, chat, now)
		results = append(results, res)

		entry := f.logger.WithFields(logrus.Fields{
			LogFieldComponent: f.String(),
			"chat_id":         res.ChatID,
			"chat_name":       res.Name,
		})
		if res.Err != nil {
			metrics.ObserveChatFetch("error", 0)
			var apiErr *types.APIError
			if stderrors.As(res.Err, &apiErr) && apiErr.Hint() != "" {
				entry = entry.WithField("hint", apiErr.Hint())
			}
			entry.WithError(res.Err).Error("Failed to fetch chat messages")
			continue
		}
		metrics.ObserveChatFetch("success", res.Messages)
		entry = entry.WithFields(logrus.Fields{
			LogFieldFileName: res.File,
			LogFieldCount:    res.Messages,
			"new_messages":   res.New,
		})
		if res.New > 0 {
			entry.Info("Fetched new chat messages")
		} else {
			entry.Debug("Fetched chat messages, nothing new")
		}
	}
	return results
}

func (f *ChatFetcher) fetchChat(ctx context.Context, chat models.FetchChat, now time.Time) FetchResult {
	res := FetchResult{ChatID: chat.ChatID, Name: chat.Name}

	chatID := NormalizeChatID(chat.ChatID)
	if chatID == "" {
		res.Err = fmt.Errorf("chat id %q is neither a WhatsApp id nor a phone number", chat.ChatID)
		return res
	}
	res.ChatID = chatID

	req := types.ChatMessagesRequest{
		ChatID:    chatID,
		Limit:     chat.Limit,
		SortBy:    chat.SortBy,
		SortOrder: chat.SortOrder,
	}
	if req.Limit <= 0 {
		req.Limit = constants.DefaultWAHAChatLimit
	}
	if req.Limit > constants.MaxWAHAChatLimit {
		req.Limit = constants.MaxWAHAChatLimit
	}
	if req.SortBy == "" {
		req.SortBy = constants.DefaultWAHASortBy
	}
	if req.SortOrder == "" {
		req.SortOrder = constants.DefaultWAHASortOrder
	}

	var fetched []map[string]any
	err := f.backoff.RetryWithPredicate(ctx, func() error {
		var err error
		fetched, err = f.opts.Client.GetChatMessages(ctx, req)
		return err
	}, isRetryableFetchError)
	if err != nil {
		res.Err = err
		return res
	}
	if len(fetched) == 0 {
		return res
	}

	records := make([]models.Record, len(fetched))
	for i, m := range fetched {
		records[i] = models.Record(m)
	}
	res.Messages = len(records)
	res.New = f.countNew(chatID, records)

	res.File = FetchFileName(chatID, now)
	if err := f.opts.Store.Write(ctx, store.DirMessagesID, res.File, records); err != nil {
		res.Err = err
	}
	return res
}

// countNew counts records newer than the newest one seen on a previous run
func (f *ChatFetcher) countNew(chatID string, records []models.Record) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	last, seen := f.lastSeen[chatID]
	newest, count := last, 0
	for _, r := range records {
		ts := r.Int64(models.FieldTimestamp)
		if !seen || ts > last {
			count++
		}
		if ts > newest {
			newest = ts
		}
	}
	f.lastSeen[chatID] = newest
	return count
}

func isRetryableFetchError(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *types.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// NormalizeChatID keeps full WhatsApp ids and turns phone numbers into
// individual chat ids; "" when neither applies.
func NormalizeChatID(id string) string {
	id = strings.TrimSpace(id)
	if strings.Contains(id, "@") {
		return id
	}
	return models.WhatsAppIDFromPhone(id)
}

// FetchFileName names the file a fetch is saved under, e.g.
// waha_messages_6281234567890_20240115_103000.json
func FetchFileName(chatID string, at time.Time) string {
	clean := strings.NewReplacer("@c.us", "", "+", "").Replace(chatID)
	return security.SanitizeFilename(constants.WAHAFilePrefix + clean + "_" + at.Format("20060102_150405"))
}

// WithinEnabledHours reports whether now falls inside the wall-clock window,
// bounds included. A window whose end precedes its start wraps past
// midnight. No window, or an incomplete one, means always.
func WithinEnabledHours(now time.Time, hours *models.EnabledHours) bool {
	if hours == nil || hours.Start == "" || hours.End == "" {
		return true
	}
	start, err := time.Parse("15:04", hours.Start)
	if err != nil {
		return true
	}
	end, err := time.Parse("15:04", hours.End)
	if err != nil {
		return true
	}

	cur := now.Hour()*60 + now.Minute()
	from := start.Hour()*60 + start.Minute()
	to := end.Hour()*60 + end.Minute()
	if from <= to {
		return cur >= from && cur <= to
	}
	return cur >= from || cur <= to
}
