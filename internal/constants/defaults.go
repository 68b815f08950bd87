package constants

// Default server configuration values
const (
	DefaultServerPort            = 3001
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRateLimitPerMinute    = 100
	DefaultRateLimitWindowSec    = 60
	DefaultJanitorIntervalSec    = 300
	DefaultConfigReloadSec       = 5
	DefaultWatchBufferSize       = 32
	DefaultMaxRequestBodyMB      = 10
	DefaultRateLimiterMaxIdleSec = 300
)

// Default storage layout, relative to the base directory
const (
	DefaultBaseDir       = "."
	DefaultInputDir      = "input"
	DefaultOutputDir     = "output"
	DefaultChatIDDir     = "chatId"
	DefaultMessagesIDDir = "messagesId"
	DefaultMaxFileSizeMB = 10
	DefaultBackupSuffix  = ".bak"
	DefaultContactsFile  = "kontak_saya.json"
	DefaultMessagesFile  = "data_saya.json"
	JSONExtension        = ".json"
	BytesPerKilobyte     = 1024
	BytesPerMegabyte     = 1024 * 1024
)

// Default query and aggregation values
const (
	DefaultPageLimit       = 100
	MaxPageLimit           = 1000
	DefaultSortLocale      = "en"
	DefaultStatsCacheTTL   = 300
	DefaultStatsTimeZone   = "UTC"
	DefaultRecentMessages  = 50
	DefaultResponseGapMins = 720
	MessageSourceAPI       = "api_v1"
)

// WAHA fetcher defaults
const (
	DefaultWAHASession       = "default"
	DefaultWAHATimeoutSec    = 30
	DefaultWAHARetryCount    = 3
	DefaultWAHARetryDelaySec = 5
	DefaultWAHAIntervalMin   = 30
	DefaultWAHAChatLimit     = 100
	MaxWAHAChatLimit         = 1000
	DefaultWAHASortBy        = "timestamp"
	DefaultWAHASortOrder     = "desc"
	WAHAFilePrefix           = "waha_messages_"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)

const APIVersion = "v1"
