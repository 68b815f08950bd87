package main

import (
	"fmt"
	"time"

	"whatsdata/internal/features"
	"whatsdata/internal/models"
	"whatsdata/internal/retry"
	"whatsdata/internal/service"
	"whatsdata/internal/store"
	"whatsdata/pkg/whatsapp"
	"whatsdata/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// newChatFetcher builds the WAHA fetcher, or returns nil when no WAHA server
// is configured. The waha_fetcher flag is checked on every run so it can be
// toggled by a config reload.
func newChatFetcher(cfg *models.Config, blobs store.BlobStore, flags *features.Manager, logger *logrus.Logger) (*service.ChatFetcher, error) {
	waha := cfg.WAHA
	if waha.BaseURL == "" {
		return nil, nil
	}

	zone := waha.TimeZone
	if zone == "" {
		zone = cfg.Stats.TimeZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid WAHA time zone %q: %w", zone, err)
	}

	client := whatsapp.NewClient(types.ClientConfig{
		BaseURL:     waha.BaseURL,
		APIKey:      waha.APIKey,
		Username:    waha.Username,
		Password:    waha.Password,
		SessionName: waha.Session,
		Timeout:     time.Duration(waha.TimeoutSec) * time.Second,
	})

	delay := time.Duration(waha.RetryDelaySec) * time.Second
	if delay <= 0 {
		delay = time.Millisecond
	}
	return service.NewChatFetcher(service.ChatFetcherOptions{
		Client:   client,
		Store:    blobs,
		Chats:    waha.Chats,
		Interval: time.Duration(waha.IntervalMin) * time.Minute,
		Hours:    waha.EnabledHours,
		Location: loc,
		Retry: retry.BackoffConfig{
			InitialDelay: delay,
			MaxDelay:     delay,
			Multiplier:   1,
			MaxAttempts:  max(waha.RetryCount, 1),
		},
		Enabled: func() bool { return flags.IsEnabled(features.FlagWAHAFetcher) },
		Logger:  logger,
	}), nil
}
