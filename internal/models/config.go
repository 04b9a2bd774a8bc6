package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig    `json:"server" yaml:"server"`
	Database      DatabaseConfig  `json:"database" yaml:"database"`
	Uploads       UploadsConfig   `json:"uploads" yaml:"uploads"`
	Auth          AuthConfig      `json:"auth" yaml:"auth"`
	Fanout        FanoutConfig    `json:"fanout" yaml:"fanout"`
	Detection     DetectionConfig `json:"detection" yaml:"detection"`
	Retry         RetryConfig     `json:"retry" yaml:"retry"`
	RateLimit     RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Tracing       TracingConfig   `json:"tracing" yaml:"tracing"`
	LogLevel      string          `json:"log_level" yaml:"log_level"`
	RetentionDays int             `json:"retentionDays" yaml:"retention_days"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port                 int    `json:"port" yaml:"port"`
	PublicBaseURL        string `json:"public_base_url" yaml:"public_base_url"`
	StaticDir            string `json:"static_dir" yaml:"static_dir"`
	CleanupIntervalHours int    `json:"cleanup_interval_hours" yaml:"cleanup_interval_hours"`

	// TrustProxy honours X-Forwarded-For / X-Real-IP for client addresses
	TrustProxy     bool     `json:"trust_proxy" yaml:"trust_proxy"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// UploadsConfig controls where attachment images are stored
type UploadsConfig struct {
	Dir          string   `json:"dir" yaml:"dir"`
	MaxSizeMB    int      `json:"maxSizeMB" yaml:"max_size_mb"`
	AllowedTypes []string `json:"allowedTypes" yaml:"allowed_types"`
}

// AuthConfig holds the demo OTP settings
type AuthConfig struct {
	OTPCode string `json:"otp_code" yaml:"otp_code"`
}

// FanoutConfig controls real-time delivery
type FanoutConfig struct {
	SendBuffer int         `json:"send_buffer" yaml:"send_buffer"`
	Redis      RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig enables relaying fanout events between server instances
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Channel  string `json:"channel" yaml:"channel"`
	NodeName string `json:"node_name" yaml:"node_name"`
}

// DetectionConfig holds the plant health API settings
type DetectionConfig struct {
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url"`
	APIKey     string `json:"-" yaml:"-"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"max_size_mb"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs" yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"maxBackoffMs" yaml:"max_backoff_ms"`
	MaxAttempts      int `json:"maxAttempts" yaml:"max_attempts"`
}

// RateLimitConfig sets the per-client token bucket for write endpoints
type RateLimitConfig struct {
	RPS   float64 `json:"rps" yaml:"rps"`
	Burst int     `json:"burst" yaml:"burst"`
}

// TracingConfig contains OpenTelemetry configuration
type TracingConfig struct {
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
