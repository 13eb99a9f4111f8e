// Package validate provides input validation and sanitization for the
// LumenFund API: organization names shown on donation pages, gateway
// references forwarded to the payment processor, and custom domains.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if
// validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Character count, not byte count.
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// SanitizeHTML escapes HTML special characters. Organization names end up
// rendered on donation pages and receipts, so they are escaped on the way in.
func SanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// SanitizeString performs both validation and HTML sanitization.
func SanitizeString(s string, constraints StringConstraints) (string, error) {
	validated, err := String(s, constraints)
	if err != nil {
		return "", err
	}
	return SanitizeHTML(validated), nil
}

// OrganizationName validates a nonprofit tenant's display name:
// 3-128 characters after trimming, HTML-escaped.
func OrganizationName(name string) (string, error) {
	return SanitizeString(name, StringConstraints{
		MinLength:  3,
		MaxLength:  128,
		AllowEmpty: false,
		TrimSpace:  true,
	})
}

// gatewayRefPattern matches opaque gateway tokens such as "tok_visa_4242".
var gatewayRefPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// GatewayRef validates an opaque payment-instrument reference issued by
// the gateway. The platform never sees raw card data; the reference is
// the only instrument identifier it stores.
func GatewayRef(ref string) (string, error) {
	return String(ref, StringConstraints{
		MinLength:      1,
		MaxLength:      255,
		AllowedPattern: gatewayRefPattern,
		AllowEmpty:     false,
		TrimSpace:      true,
	})
}
