package service

// Logging standards for whatsdata
//
// Standard field names shared by the services, middleware and server so
// that log queries work the same across components.
const (
	// Request identifiers
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Record identifiers; masked unless verbose logging is on
	LogFieldContactID = "contact_id"
	LogFieldFromUser  = "from_user"
	LogFieldToUser    = "to_user"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Storage fields
	LogFieldFileName  = "file_name"
	LogFieldDirectory = "directory"
	LogFieldKind      = "kind"
	LogFieldBackup    = "backup"
	LogFieldSkipped   = "skipped_files"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldTotal    = "total"
	LogFieldSize     = "size_bytes"

	// HTTP
	LogFieldURL        = "url"
	LogFieldRoute      = "route"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Errors
	LogFieldErrorCode = "error_code"
	LogFieldStatsType = "stats_type"
	LogFieldCacheHit  = "cache_hit"
)

// Log level usage
//
// DEBUG: cache hits and misses, per-file skips while merging, query parameters.
// INFO: startup and shutdown, configuration reloads, mutations (create, update,
// delete, import) with their counts.
// WARN: client errors (4xx), skipped invalid blobs, failed backups, rate limiting.
// ERROR: server errors (5xx) and failures of supervised services.
//
// Message patterns: "Starting [operation]", "Completed [operation]",
// "Failed to [operation]", "Skipping [what]: [reason]".
