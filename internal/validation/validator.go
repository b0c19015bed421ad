package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInvalidID          = errors.New("invalid id format")
	ErrStringTooLong      = errors.New("string exceeds maximum length")
	ErrStringTooShort     = errors.New("string below minimum length")
	ErrControlCharacters  = errors.New("string contains control characters")
	ErrContainsXSSPattern = errors.New("input contains suspicious XSS patterns")
)

const (
	MaxIDLength          = 64
	MaxDisplayNameLength = 32
)

var (
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// Chat and names are echoed to every client at the table.
	xssPatterns = []string{
		"<script", "</script", "javascript:", "onerror=", "onload=",
		"<iframe", "</iframe", "<object", "</object", "eval(",
	}
)

// ValidateTableID checks a table id taken from the connection query.
func ValidateTableID(id string) error {
	return validateID(id, "tableId")
}

// ValidatePlayerID checks a player id taken from the connection query.
func ValidatePlayerID(id string) error {
	return validateID(id, "playerId")
}

func validateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrStringTooLong, fieldName, MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %s may only contain letters, digits and _ . : -", ErrInvalidID, fieldName)
	}
	return nil
}

// ValidateDisplayName returns the sanitized name or an error.
func ValidateDisplayName(name string) (string, error) {
	return ValidateSafeString(name, 1, MaxDisplayNameLength, "name")
}

// ValidateStringLength counts runes, not bytes.
func ValidateStringLength(value string, minLen, maxLen int, fieldName string) error {
	n := utf8.RuneCountInString(value)
	if n < minLen {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrStringTooShort, fieldName, minLen)
	}
	if n > maxLen {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrStringTooLong, fieldName, maxLen)
	}
	return nil
}

// SanitizeString drops null bytes and trims surrounding whitespace.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// CheckXSS checks for common XSS patterns
func CheckXSS(input string) error {
	lower := strings.ToLower(input)
	for _, pattern := range xssPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: contains '%s'", ErrContainsXSSPattern, pattern)
		}
	}
	return nil
}

func checkControl(input string) error {
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return ErrControlCharacters
		}
	}
	return nil
}

// ValidateSafeString sanitizes input, then checks length, control characters
// and XSS patterns.
func ValidateSafeString(input string, minLen, maxLen int, fieldName string) (string, error) {
	sanitized := SanitizeString(input)

	if err := ValidateStringLength(sanitized, minLen, maxLen, fieldName); err != nil {
		return "", err
	}
	if err := checkControl(sanitized); err != nil {
		return "", fmt.Errorf("%s: %w", fieldName, err)
	}
	if err := CheckXSS(sanitized); err != nil {
		return "", fmt.Errorf("%s: %w", fieldName, err)
	}
	return sanitized, nil
}
