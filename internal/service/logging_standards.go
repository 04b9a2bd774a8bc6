package service

// Standard field names for structured log entries. Use these exact names
// so log queries work across the server and client.
const (
	// Core identifiers
	LogFieldGroupID   = "group_id"
	LogFieldMessageID = "message_id"
	LogFieldUserID    = "user_id"
	LogFieldLocalKey  = "local_key"

	// Operation fields
	LogFieldMethod = "method"
	LogFieldEvent  = "event"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"

	LogFieldFileName = "file_name"
	LogFieldAttempt  = "attempt"
)

// Log levels
//
// DEBUG: per-request detail, fanout deliveries, real-time commands.
// INFO: startup and shutdown, configuration loaded, groups created, drain summaries.
// WARN: retryable failures, dropped events, messages left in the offline queue.
// ERROR: failed operations returned to a caller as 5xx.
