package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	OTPLength         = 6
	MinPasswordLength = 6
	visiblePhoneTail  = 4
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^[1-9][0-9]{9,14}$`)
	otpRegex   = regexp.MustCompile(`^[0-9]{6}$`)

	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "", ".", "")
)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	return emailRegex.MatchString(email)
}

// CanonicalizePhone strips separators from a user supplied phone number.
// The result is not guaranteed to be valid; see ValidatePhone.
func CanonicalizePhone(raw string) string {
	return phoneSeparators.Replace(strings.TrimSpace(raw))
}

// ValidatePhone canonicalizes raw and reports whether it is 10-15 digits
// with a non-zero leading digit.
func ValidatePhone(raw string) (string, bool) {
	phone := CanonicalizePhone(raw)
	if !phoneRegex.MatchString(phone) {
		return "", false
	}
	return phone, true
}

// MaskPhone replaces every character except the last four with '*'.
// Length is preserved.
func MaskPhone(phone string) string {
	if len(phone) <= visiblePhoneTail {
		return strings.Repeat("*", len(phone))
	}
	hidden := len(phone) - visiblePhoneTail
	return strings.Repeat("*", hidden) + phone[hidden:]
}

// ValidateOTPCode reports whether code is exactly six ASCII digits.
func ValidateOTPCode(code string) bool {
	return otpRegex.MatchString(code)
}

// ValidateNewPassword checks the minimum length accepted by password recovery.
func ValidateNewPassword(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// SanitizeString removes potentially harmful characters
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
