package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"agromind/internal/constants"
	"agromind/internal/errors"
)

// ValidatePhoneNumber validates phone number format and length
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")

	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// ValidateGroupID checks that a group reference is well-formed. Existence is
// not checked.
func ValidateGroupID(groupID string) error {
	return validateIdentifier(groupID, "group ID", constants.MaxGroupIDLength)
}

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	return validateIdentifier(messageID, "message ID", constants.MaxMessageIDLength)
}

func validateIdentifier(value, fieldName string, maxLength int) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(errors.ErrCodeInvalidInput, fieldName+" cannot be empty")
	}

	if len(value) > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}

	for _, char := range value {
		if char == '\x00' || char == '\n' || char == '\r' || char == '\t' || char == '/' {
			return errors.New(errors.ErrCodeInvalidInput, fieldName+" contains invalid characters")
		}
	}

	return nil
}

// ValidateGroupName requires a non-blank name within the length limit
func ValidateGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewValidationError("name", name, "group name is required")
	}
	return ValidateStringLength(name, "group name", 1, constants.MaxGroupNameLength)
}

// ValidateGroupDescription bounds the optional description
func ValidateGroupDescription(desc string) error {
	return ValidateStringLength(desc, "description", 0, constants.MaxGroupDescLength)
}

// ValidateMessageText bounds the optional message body
func ValidateMessageText(text string) error {
	return ValidateStringLength(text, "text", 0, constants.MaxMessageTextLength)
}

// ValidateAuthorName bounds the denormalized author name
func ValidateAuthorName(name string) error {
	return ValidateStringLength(name, "user name", 0, constants.MaxAuthorNameLength)
}

// ValidateLanguage accepts short BCP 47 style tags such as "en" or "pt-BR".
func ValidateLanguage(lang string) error {
	if lang == "" {
		return nil
	}
	if len(lang) > constants.MaxLanguageTagLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("language tag too long (max %d characters)", constants.MaxLanguageTagLength))
	}
	for _, char := range lang {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '-' && char != '_' {
			return errors.New(errors.ErrCodeInvalidInput, "language tag contains invalid characters")
		}
	}
	return nil
}

// ValidateOTP checks the shape of a one-time code, not its value
func ValidateOTP(otp string) error {
	if otp == "" {
		return errors.New(errors.ErrCodeInvalidInput, "otp cannot be empty")
	}
	for _, char := range otp {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "otp must contain only digits")
		}
	}
	return nil
}

// ValidateImageSize validates an image upload against a megabyte limit
func ValidateImageSize(sizeBytes int64, maxSizeMB int) error {
	if sizeBytes < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "image size cannot be negative")
	}

	if sizeBytes == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "image file is empty")
	}

	maxSizeBytes := int64(maxSizeMB) * constants.BytesPerMegabyte
	if sizeBytes > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("image too large: %d bytes (max %d MB)", sizeBytes, maxSizeMB))
	}

	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	if len(value) < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}

	if len(value) > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	return ValidateNumericRange(timeoutSec, fieldName, 1, 3600)
}

// ValidateRetentionDays validates data retention period. Zero disables cleanup.
func ValidateRetentionDays(days int) error {
	if days < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days cannot be negative")
	}

	if days > 3650 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days too large (max 3650)")
	}

	return nil
}
