package constants

// Server defaults
const (
	DefaultServerPort            = 4000
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
	DefaultPublicBaseURL         = "http://localhost:4000"
	DefaultLogLevel              = "info"
	DefaultServiceName           = "agromind"
	ConfigPollIntervalSec        = 5
)

// Message store defaults
const (
	DefaultDatabasePath           = "agromind.db"
	DefaultMessageListLimit       = 500
	MaxMessageListLimit           = 500
	DefaultMessageLanguage        = "en"
	DefaultDatabaseRetryAttempts  = 3
	DefaultRetryBackoffMs         = 100
	DefaultMaxBackoffMs           = 2000
	DefaultRetentionDays          = 0
	CleanupSchedulerIntervalHours = 24
)

// Input limits
const (
	MaxGroupIDLength     = 128
	MaxMessageIDLength   = 128
	MaxGroupNameLength   = 120
	MaxGroupDescLength   = 1000
	MaxMessageTextLength = 4000
	MaxAuthorNameLength  = 120
	MaxLanguageTagLength = 16
	MinPhoneNumberLength = 6
	MaxPhoneNumberLength = 20
	MaxJSONBodyBytes     = 1 << 20
	MaxMultipartMemoryMB = 8
	BytesPerMegabyte     = 1024 * 1024
)

// Auth defaults
const (
	DefaultOTPCode  = "1234"
	DefaultUserName = "Farmer"
)

// Fanout defaults
const (
	DefaultSubscriberSendBuffer = 16
	DefaultRelayBufferSize      = 256
	DefaultWSWriteTimeoutSec    = 10
	DefaultWSPingIntervalSec    = 30
	DefaultWSReadLimitBytes     = 4096
	DefaultRedisChannel         = "agromind:fanout"
)

// Uploads defaults
const (
	DefaultUploadsDir     = "uploads"
	DefaultMaxImageSizeMB = 5
	UploadsURLPrefix      = "/uploads/"
	UploadNameRandomBytes = 16
)

// Detection relay defaults
const (
	DefaultPlantIDBaseURL           = "https://plant.id/api/v3"
	DefaultDetectionTimeoutSec      = 30
	DefaultDetectionBreakerFailures = 5
	DefaultDetectionBreakerResetSec = 30
	DefaultMaxDetectionImageSizeMB  = 10
)

// Rate limiting defaults
const (
	DefaultRateLimitRPS   = 5
	DefaultRateLimitBurst = 10
)

// Client defaults
const (
	DefaultClientHTTPTimeoutSec = 10
	DefaultReconnectInitialMs   = 500
	DefaultReconnectMaxSec      = 30
	DefaultClientEventBuffer    = 32
	DefaultDrainTimeoutSec      = 120
	QueueOfflineNotice          = "offline, message queued"
)

// Encryption
const (
	EncryptionSalt       = "agromind-phone-salt-v1"
	EncryptionLookupSalt = "agromind-phone-lookup-v1"
)
