package config

import (
	"fmt"
	"os"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/models"
	"whatsdata/internal/security"
	"whatsdata/internal/validation"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. WHATSDATA_DATA_DIR
const EnvPrefix = "WHATSDATA"

// envOverrides lists the settings that can be changed from the environment.
// Each key is read as WHATSDATA_<KEY>, falling back to the bare <KEY>.
type envOverrides struct {
	Port          int     `envconfig:"PORT"`
	DataDir       string  `envconfig:"DATA_DIR"`
	LogLevel      string  `envconfig:"LOG_LEVEL"`
	RateLimit     int     `envconfig:"RATE_LIMIT"`
	MaxFileSizeMB int     `envconfig:"MAX_FILE_SIZE_MB"`
	TimeZone      string  `envconfig:"TIME_ZONE"`
	SortLocale    string  `envconfig:"SORT_LOCALE"`
	OTLPEndpoint  string  `envconfig:"OTLP_ENDPOINT"`
	SampleRate    float64 `envconfig:"TRACE_SAMPLE_RATE"`
	WAHAURL       string  `envconfig:"WAHA_URL"`
	WAHAAPIKey    string  `envconfig:"WAHA_API_KEY"`
	WAHAUsername  string  `envconfig:"WAHA_USERNAME"`
	WAHAPassword  string  `envconfig:"WAHA_PASSWORD"`
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// DefaultConfig returns a configuration that serves the current directory
func DefaultConfig() *models.Config {
	return &models.Config{
		Server: models.ServerConfig{
			Port:               constants.DefaultServerPort,
			ReadTimeoutSec:     constants.DefaultServerReadTimeoutSec,
			WriteTimeoutSec:    constants.DefaultServerWriteTimeoutSec,
			IdleTimeoutSec:     constants.DefaultServerIdleTimeoutSec,
			ShutdownTimeoutSec: constants.DefaultGracefulShutdownSec,
			RateLimitPerMinute: constants.DefaultRateLimitPerMinute,
			RateLimitWindowSec: constants.DefaultRateLimitWindowSec,
			JanitorIntervalSec: constants.DefaultJanitorIntervalSec,
			ConfigReloadSec:    constants.DefaultConfigReloadSec,
			WatchBufferSize:    constants.DefaultWatchBufferSize,
			MaxRequestBodyMB:   constants.DefaultMaxRequestBodyMB,
		},
		Storage: models.StorageConfig{
			BaseDir:       constants.DefaultBaseDir,
			InputDir:      constants.DefaultInputDir,
			OutputDir:     constants.DefaultOutputDir,
			ChatIDDir:     constants.DefaultChatIDDir,
			MessagesIDDir: constants.DefaultMessagesIDDir,
			MaxFileSizeMB: constants.DefaultMaxFileSizeMB,
			BackupSuffix:  constants.DefaultBackupSuffix,
			ContactsFile:  constants.DefaultContactsFile,
			MessagesFile:  constants.DefaultMessagesFile,
		},
		Query: models.QueryConfig{
			DefaultLimit: constants.DefaultPageLimit,
			MaxLimit:     constants.MaxPageLimit,
			SortLocale:   constants.DefaultSortLocale,
		},
		Stats: models.StatsConfig{
			CacheTTLSec:     constants.DefaultStatsCacheTTL,
			TimeZone:        constants.DefaultStatsTimeZone,
			RecentMessages:  constants.DefaultRecentMessages,
			ResponseGapMins: constants.DefaultResponseGapMins,
		},
		WAHA: models.WAHAConfig{
			Session:       constants.DefaultWAHASession,
			TimeoutSec:    constants.DefaultWAHATimeoutSec,
			RetryCount:    constants.DefaultWAHARetryCount,
			RetryDelaySec: constants.DefaultWAHARetryDelaySec,
			IntervalMin:   constants.DefaultWAHAIntervalMin,
		},
		Tracing: models.TracingConfig{
			ServiceName:    "whatsdata",
			ServiceVersion: "dev",
			Environment:    "development",
			SampleRate:     1.0,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads the JSON config at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an error.
func LoadConfig(path string) (*models.Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, err
		default:
			if err := json.Unmarshal(file, config); err != nil {
				return nil, models.ConfigError{Message: fmt.Sprintf("failed to parse %s: %v", path, err)}
			}
		}
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid environment override: %v", err)}
	}

	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.DataDir != "" {
		c.Storage.BaseDir = env.DataDir
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	if env.RateLimit != 0 {
		c.Server.RateLimitPerMinute = env.RateLimit
	}
	if env.MaxFileSizeMB != 0 {
		c.Storage.MaxFileSizeMB = env.MaxFileSizeMB
	}
	if env.TimeZone != "" {
		c.Stats.TimeZone = env.TimeZone
	}
	if env.SortLocale != "" {
		c.Query.SortLocale = env.SortLocale
	}
	if env.OTLPEndpoint != "" {
		c.Tracing.OTLPEndpoint = env.OTLPEndpoint
		c.Tracing.Enabled = true
	}
	if env.SampleRate != 0 {
		c.Tracing.SampleRate = env.SampleRate
	}
	if env.WAHAURL != "" {
		c.WAHA.BaseURL = env.WAHAURL
	}
	if env.WAHAAPIKey != "" {
		c.WAHA.APIKey = env.WAHAAPIKey
	}
	if env.WAHAUsername != "" {
		c.WAHA.Username = env.WAHAUsername
	}
	if env.WAHAPassword != "" {
		c.WAHA.Password = env.WAHAPassword
	}
	return nil
}

func validate(c *models.Config) error {
	if err := validation.ValidateStruct(c); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if _, err := time.LoadLocation(c.Stats.TimeZone); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("unknown time zone %q", c.Stats.TimeZone)}
	}

	if c.WAHA.TimeZone != "" {
		if _, err := time.LoadLocation(c.WAHA.TimeZone); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("unknown WAHA time zone %q", c.WAHA.TimeZone)}
		}
	}

	dirs := map[string]bool{}
	for _, d := range []string{c.Storage.InputDir, c.Storage.OutputDir, c.Storage.ChatIDDir, c.Storage.MessagesIDDir} {
		if err := security.ValidateFilePathWithBase(d, c.Storage.BaseDir); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid storage directory %q: %v", d, err)}
		}
		if dirs[d] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate storage directory: %s", d)}
		}
		dirs[d] = true
	}

	for _, f := range []string{c.Storage.ContactsFile, c.Storage.MessagesFile} {
		if security.SanitizeFilename(f) != f {
			return models.ConfigError{Message: fmt.Sprintf("invalid default file name: %s", f)}
		}
	}
	return nil
}

// ReadTimeout and friends convert the integer settings used in config files
func ReadTimeout(c *models.Config) time.Duration {
	return time.Duration(c.Server.ReadTimeoutSec) * time.Second
}

func WriteTimeout(c *models.Config) time.Duration {
	return time.Duration(c.Server.WriteTimeoutSec) * time.Second
}

func IdleTimeout(c *models.Config) time.Duration {
	return time.Duration(c.Server.IdleTimeoutSec) * time.Second
}

func ShutdownTimeout(c *models.Config) time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}
