package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig    `json:"server"`
	Storage  StorageConfig   `json:"storage"`
	Query    QueryConfig     `json:"query"`
	Stats    StatsConfig     `json:"stats"`
	Tracing  TracingConfig   `json:"tracing"`
	WAHA     WAHAConfig      `json:"waha"`
	Features map[string]bool `json:"features"`
	LogLevel string          `json:"log_level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                int  `json:"port" validate:"min=1,max=65535"`
	ReadTimeoutSec      int  `json:"read_timeout_sec" validate:"min=0"`
	WriteTimeoutSec     int  `json:"write_timeout_sec" validate:"min=0"`
	IdleTimeoutSec      int  `json:"idle_timeout_sec" validate:"min=0"`
	ShutdownTimeoutSec  int  `json:"shutdown_timeout_sec" validate:"min=0"`
	RateLimitPerMinute  int  `json:"rate_limit_per_minute" validate:"min=0"`
	RateLimitWindowSec  int  `json:"rate_limit_window_sec" validate:"min=0"`
	JanitorIntervalSec  int  `json:"janitor_interval_sec" validate:"min=0"`
	ConfigReloadSec     int  `json:"config_reload_sec" validate:"min=0"`
	WatchBufferSize     int  `json:"watch_buffer_size" validate:"min=0"`
	MaxRequestBodyMB    int  `json:"max_request_body_mb" validate:"min=0"`
	TrustedProxyHeaders bool `json:"trusted_proxy_headers"`
}

// StorageConfig describes the directories holding JSON blobs
type StorageConfig struct {
	BaseDir       string `json:"base_dir" validate:"required"`
	InputDir      string `json:"input_dir" validate:"required"`
	OutputDir     string `json:"output_dir" validate:"required"`
	ChatIDDir     string `json:"chat_id_dir" validate:"required"`
	MessagesIDDir string `json:"messages_id_dir" validate:"required"`
	MaxFileSizeMB int    `json:"max_file_size_mb" validate:"min=1"`
	BackupSuffix  string `json:"backup_suffix" validate:"required,startswith=."`
	ContactsFile  string `json:"contacts_file" validate:"required"`
	MessagesFile  string `json:"messages_file" validate:"required"`
}

// QueryConfig holds listing defaults
type QueryConfig struct {
	DefaultLimit int    `json:"default_limit" validate:"min=1"`
	MaxLimit     int    `json:"max_limit" validate:"min=1,gtefield=DefaultLimit"`
	SortLocale   string `json:"sort_locale" validate:"required"`
}

// StatsConfig holds aggregation settings
type StatsConfig struct {
	CacheTTLSec     int    `json:"cache_ttl_sec" validate:"min=0"`
	TimeZone        string `json:"time_zone" validate:"required"`
	RecentMessages  int    `json:"recent_messages" validate:"min=0"`
	ResponseGapMins int    `json:"response_gap_mins" validate:"min=0"`
}

// TracingConfig mirrors tracing.TracingConfig in a JSON friendly form
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" validate:"min=0,max=1"`
	UseConsole     bool    `json:"use_console"`
}

// WAHAConfig describes the WAHA server and the chats fetched from it. The
// fetcher only runs when BaseURL is set and the waha_fetcher flag is on.
type WAHAConfig struct {
	BaseURL       string        `json:"base_url" validate:"omitempty,url"`
	APIKey        string        `json:"api_key"`
	Username      string        `json:"username"`
	Password      string        `json:"password"`
	Session       string        `json:"session" validate:"required"`
	TimeoutSec    int           `json:"timeout_sec" validate:"min=1"`
	RetryCount    int           `json:"retry_count" validate:"min=0,max=10"`
	RetryDelaySec int           `json:"retry_delay_sec" validate:"min=0"`
	IntervalMin   int           `json:"interval_minutes" validate:"min=1"`
	EnabledHours  *EnabledHours `json:"enabled_hours"`
	TimeZone      string        `json:"time_zone"`
	Chats         []FetchChat   `json:"chats" validate:"dive"`
}

// EnabledHours bounds the fetch window as HH:MM wall-clock times. A window
// whose end is before its start runs overnight.
type EnabledHours struct {
	Start string `json:"start" validate:"omitempty,datetime=15:04"`
	End   string `json:"end" validate:"omitempty,datetime=15:04"`
}

// FetchChat is one chat to pull messages from
type FetchChat struct {
	ChatID    string `json:"chat_id" validate:"required"`
	Name      string `json:"name"`
	Enabled   *bool  `json:"enabled"`
	Limit     int    `json:"limit" validate:"min=0,max=1000"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// IsEnabled treats a missing enabled field as true
func (c FetchChat) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
