package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"agromind/internal/constants"
	"agromind/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		wantErr bool
	}{
		{"valid with plus", "+919876543210", false},
		{"valid digits", "9876543210", false},
		{"empty", "", true},
		{"too short", "12345", true},
		{"too long", strings.Repeat("1", 21), true},
		{"letters", "98765abc10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.phone)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateGroupID(t *testing.T) {
	assert.NoError(t, ValidateGroupID("g1"))
	assert.NoError(t, ValidateGroupID("6f1c7b9e-5d0a-4e0f-9a51-0c2d8b1d9c11"))

	assert.Error(t, ValidateGroupID(""))
	assert.Error(t, ValidateGroupID("   "))
	assert.Error(t, ValidateGroupID("a/b"))
	assert.Error(t, ValidateGroupID("g\n1"))
	assert.Error(t, ValidateGroupID(strings.Repeat("g", constants.MaxGroupIDLength+1)))
}

func TestValidateMessageID(t *testing.T) {
	assert.NoError(t, ValidateMessageID("m-1"))
	assert.Error(t, ValidateMessageID(""))
	assert.Error(t, ValidateMessageID("m\x001"))
}

func TestValidateGroupName(t *testing.T) {
	assert.NoError(t, ValidateGroupName("Paddy growers"))

	err := ValidateGroupName("  ")
	assert.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))

	assert.Error(t, ValidateGroupName(strings.Repeat("x", constants.MaxGroupNameLength+1)))
}

func TestOptionalFieldLimits(t *testing.T) {
	assert.NoError(t, ValidateGroupDescription(""))
	assert.NoError(t, ValidateMessageText(""))
	assert.NoError(t, ValidateAuthorName(""))

	assert.Error(t, ValidateGroupDescription(strings.Repeat("d", constants.MaxGroupDescLength+1)))
	assert.Error(t, ValidateMessageText(strings.Repeat("t", constants.MaxMessageTextLength+1)))
	assert.Error(t, ValidateAuthorName(strings.Repeat("n", constants.MaxAuthorNameLength+1)))
}

func TestValidateLanguage(t *testing.T) {
	for _, lang := range []string{"", "en", "kn", "pt-BR", "zh_Hant"} {
		assert.NoError(t, ValidateLanguage(lang), lang)
	}
	assert.Error(t, ValidateLanguage("en;drop"))
	assert.Error(t, ValidateLanguage(strings.Repeat("a", constants.MaxLanguageTagLength+1)))
}

func TestValidateOTP(t *testing.T) {
	assert.NoError(t, ValidateOTP("1234"))
	assert.Error(t, ValidateOTP(""))
	assert.Error(t, ValidateOTP("12a4"))
}

func TestValidateImageSize(t *testing.T) {
	assert.NoError(t, ValidateImageSize(1024, 5))
	assert.Error(t, ValidateImageSize(0, 5))
	assert.Error(t, ValidateImageSize(-1, 5))
	assert.Error(t, ValidateImageSize(6*constants.BytesPerMegabyte, 5))
}

func TestValidateHTTPRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/groups", strings.NewReader("{}"))
	assert.NoError(t, ValidateHTTPRequestSize(req, 10))

	req = httptest.NewRequest("POST", "/api/groups", strings.NewReader(strings.Repeat("x", 20)))
	assert.Error(t, ValidateHTTPRequestSize(req, 10))
}

func TestValidateNumericHelpers(t *testing.T) {
	assert.NoError(t, ValidateNumericRange(5, "port", 1, 10))
	assert.Error(t, ValidateNumericRange(0, "port", 1, 10))
	assert.Error(t, ValidateNumericRange(11, "port", 1, 10))

	assert.NoError(t, ValidateTimeout(30, "timeout"))
	assert.Error(t, ValidateTimeout(0, "timeout"))

	assert.NoError(t, ValidateRetentionDays(0))
	assert.NoError(t, ValidateRetentionDays(30))
	assert.Error(t, ValidateRetentionDays(-1))
	assert.Error(t, ValidateRetentionDays(4000))
}
