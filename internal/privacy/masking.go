package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+919876543210" -> "+********3210"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	return maskString(phone, 4)
}

// MaskUserID masks a user identifier
func MaskUserID(userID string) string {
	return maskString(userID, 4)
}

// MaskOTP hides the whole code.
func MaskOTP(otp string) string {
	return strings.Repeat("*", len(otp))
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// fieldMaskers maps lower-cased field names to the masking they need
var fieldMaskers = map[string]func(string) string{
	"phone":        MaskPhoneNumber,
	"phone_number": MaskPhoneNumber,
	"phonenumber":  MaskPhoneNumber,
	"user_id":      MaskUserID,
	"userid":       MaskUserID,
	"author_id":    MaskUserID,
	"authorid":     MaskUserID,
	"otp":          MaskOTP,
	"code":         MaskOTP,
}

// MaskSensitiveFields returns a copy of fields with known sensitive string
// values masked. Nested objects and arrays, as produced by decoding a JSON
// body, are walked too.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			if mask, sensitive := fieldMaskers[strings.ToLower(k)]; sensitive {
				masked[k] = mask(s)
				continue
			}
		}
		masked[k] = maskValue(v)
	}
	return masked
}

func maskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return MaskSensitiveFields(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = maskValue(item)
		}
		return out
	default:
		return v
	}
}
