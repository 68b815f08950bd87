// Package features holds the runtime switches for optional endpoints and
// behaviours of the service.
package features

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Flag names
const (
	FlagWatchFeed         = "watch_feed"
	FlagPrometheusMetrics = "prometheus_metrics"
	FlagLegacyRoutes      = "legacy_routes"
	FlagStatsCache        = "stats_cache"
	FlagRateLimiting      = "rate_limiting"
	FlagDetailedLogging   = "detailed_logging"
	FlagImporters         = "importers"
	FlagWAHAFetcher       = "waha_fetcher"
)

// EnvPrefix prefixes per-flag environment overrides, e.g. WHATSDATA_FEATURE_WATCH_FEED=false
const EnvPrefix = "WHATSDATA_FEATURE_"

// Flag is one switch and its metadata
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Definition declares a known flag and its default
type Definition struct {
	Name        string
	Description string
	Default     bool
}

// Definitions lists every flag the service understands
var Definitions = []Definition{
	{FlagWatchFeed, "Websocket change feed at /v1/watch", true},
	{FlagPrometheusMetrics, "Prometheus exposition at /metrics/prometheus", true},
	{FlagLegacyRoutes, "Serve the API under /api/v1 as well as /v1", true},
	{FlagStatsCache, "Cache computed statistics until the next write", true},
	{FlagRateLimiting, "Per-client sliding window rate limit", true},
	{FlagDetailedLogging, "Log request headers and bodies at debug level", false},
	{FlagImporters, "Accept process_chat and process_messages file actions", true},
	{FlagWAHAFetcher, "Fetch configured chats from the WAHA API on a schedule", false},
}

// Sources of a flag value
const (
	SourceDefault = "default"
	SourceConfig  = "config"
	SourceEnv     = "env"
)

// ErrFlagNotFound is returned for names missing from Definitions
type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return "feature flag not found: " + e.Name
}

// Manager stores flag state; it is safe for concurrent use
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*Flag
	now   func() time.Time
}

// NewManager returns a manager holding every definition at its default
func NewManager() *Manager {
	m := &Manager{flags: make(map[string]*Flag), now: time.Now}
	for _, def := range Definitions {
		m.flags[def.Name] = &Flag{
			Name:        def.Name,
			Enabled:     def.Default,
			Description: def.Description,
			Source:      SourceDefault,
			UpdatedAt:   m.now(),
		}
	}
	return m
}

// IsEnabled reports the flag state; unknown flags are off
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[name]
	return ok && f.Enabled
}

// Set changes a known flag
func (m *Manager) Set(name string, enabled bool, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flags[name]
	if !ok {
		return ErrFlagNotFound{Name: name}
	}
	f.Enabled = enabled
	f.Source = source
	f.UpdatedAt = m.now()
	return nil
}

// Apply sets flags from a config map and returns the unknown names
func (m *Manager) Apply(values map[string]bool, source string) []string {
	var unknown []string
	for name, enabled := range values {
		if err := m.Set(name, enabled, source); err != nil {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// LoadFromEnvironment applies WHATSDATA_FEATURE_<NAME>=bool variables.
// Values that do not parse as booleans are ignored.
func (m *Manager) LoadFromEnvironment() {
	for _, def := range Definitions {
		raw, ok := os.LookupEnv(EnvPrefix + strings.ToUpper(def.Name))
		if !ok {
			continue
		}
		if enabled, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			_ = m.Set(def.Name, enabled, SourceEnv)
		}
	}
}

// List returns copies of every flag sorted by name
func (m *Manager) List() []Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Flag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot maps flag names to their state
func (m *Manager) Snapshot() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.flags))
	for name, f := range m.flags {
		out[name] = f.Enabled
	}
	return out
}
