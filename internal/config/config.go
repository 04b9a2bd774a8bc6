package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"agromind/internal/constants"
	"agromind/internal/models"
	"agromind/internal/security"
	"agromind/internal/validation"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPort       = models.ConfigError{Message: "server port must be between 1 and 65535"}
	ErrMissingRedisAddr  = models.ConfigError{Message: "fanout.redis.addr is required when the redis relay is enabled"}
	ErrInvalidSampleRate = models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	ErrInvalidBackoff    = models.ConfigError{Message: "retry max backoff must not be smaller than retry initial backoff"}
)

// LoadConfig reads the configuration file at path, applies defaults and
// environment overrides, and validates the result. A ".env" file in the
// working directory is loaded first when present. An empty path means
// defaults plus environment only. Files ending in .yaml or .yml are parsed
// as YAML, anything else as JSON.
func LoadConfig(path string) (*models.Config, error) {
	_ = godotenv.Load()

	var config models.Config
	if path != "" {
		if err := readFile(path, &config); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func readFile(path string, config *models.Config) error {
	if err := security.ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(file, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = constants.CleanupSchedulerIntervalHours
	}
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}

	if c.Uploads.Dir == "" {
		c.Uploads.Dir = constants.DefaultUploadsDir
	}
	if c.Uploads.MaxSizeMB <= 0 {
		c.Uploads.MaxSizeMB = constants.DefaultMaxImageSizeMB
	}
	if len(c.Uploads.AllowedTypes) == 0 {
		c.Uploads.AllowedTypes = constants.DefaultImageTypes
	}

	if c.Auth.OTPCode == "" {
		c.Auth.OTPCode = constants.DefaultOTPCode
	}

	if c.Fanout.SendBuffer <= 0 {
		c.Fanout.SendBuffer = constants.DefaultSubscriberSendBuffer
	}
	if c.Fanout.Redis.Channel == "" {
		c.Fanout.Redis.Channel = constants.DefaultRedisChannel
	}
	if c.Fanout.Redis.NodeName == "" {
		if host, err := os.Hostname(); err == nil {
			c.Fanout.Redis.NodeName = host
		}
	}

	if c.Detection.APIBaseURL == "" {
		c.Detection.APIBaseURL = constants.DefaultPlantIDBaseURL
	}
	if c.Detection.TimeoutSec <= 0 {
		c.Detection.TimeoutSec = constants.DefaultDetectionTimeoutSec
	}
	if c.Detection.MaxSizeMB <= 0 {
		c.Detection.MaxSizeMB = constants.DefaultMaxDetectionImageSizeMB
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = constants.DefaultRateLimitRPS
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = constants.DefaultRateLimitBurst
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = constants.DefaultServiceName
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
	}

	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
}

func validate(c *models.Config) error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if err := validation.ValidateRetentionDays(c.RetentionDays); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateTimeout(c.Detection.TimeoutSec, "detection timeout"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if c.Fanout.Redis.Enabled && c.Fanout.Redis.Addr == "" {
		return ErrMissingRedisAddr
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return ErrInvalidBackoff
	}
	if err := validation.ValidateOTP(c.Auth.OTPCode); err != nil {
		return models.ConfigError{Message: "auth.otp_code must contain only digits"}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if url := os.Getenv("PUBLIC_BASE_URL"); url != "" {
		c.Server.PublicBaseURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("UPLOADS_DIR"); dir != "" {
		c.Uploads.Dir = dir
	}
	if code := os.Getenv("OTP_CODE"); code != "" {
		c.Auth.OTPCode = code
	}

	// SECURITY: the detection API key is only read from the environment
	if key := os.Getenv("CROP_HEALTH_API_KEY"); key != "" {
		c.Detection.APIKey = key
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Fanout.Redis.Addr = addr
		c.Fanout.Redis.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Fanout.Redis.Password = password
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// validateSecurity performs production-only checks
func validateSecurity(c *models.Config) error {
	if os.Getenv("AGROMIND_ENV") != "production" {
		if c.Detection.APIKey == "" {
			fmt.Fprintf(os.Stderr, "WARNING: CROP_HEALTH_API_KEY not set. Disease detection requests will be rejected.\n")
		}
		return nil
	}

	if c.Auth.OTPCode == constants.DefaultOTPCode {
		return models.ConfigError{Message: "the demo OTP code must be changed in production (set OTP_CODE)"}
	}
	if c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	return nil
}
