// internal/phone/phone.go
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	appErrors "github.com/zapleopard/campaign-dispatcher/internal/errors"
)

const (
	minDigits = 8
	maxDigits = 15 // E.164 ceiling
)

// Normalize canonicalizes a raw phone string into a country-code-qualified
// digit string (E.164 without the leading "+"), the dedup key for customers.
//
// Rules: non-digits are stripped; when the number looks local (11 digits or
// fewer) the default country code is prepended; the result must parse as a
// valid number. Normalizing an already-canonical value is a no-op.
func Normalize(raw, defaultCountryCode string) (string, error) {
	digits := stripNonDigits(raw)
	if digits == "" {
		return "", appErrors.NewInvalidPhone(raw, "no digits")
	}
	if len(digits) < minDigits {
		return "", appErrors.NewInvalidPhone(raw, "too short")
	}
	if len(digits) > maxDigits {
		return "", appErrors.NewInvalidPhone(raw, "too long")
	}

	// Local numbers (area code + subscriber) are at most 11 digits; anything
	// longer already carries a country code. A short value that parses as a
	// valid international number on its own is kept as-is so normalization
	// stays idempotent for canonical input.
	if len(digits) <= 11 && !validInternational(digits) {
		digits = defaultCountryCode + digits
	}

	parsed, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return "", appErrors.NewInvalidPhone(raw, "unparseable")
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", appErrors.NewInvalidPhone(raw, "not a valid number")
	}

	return strings.TrimPrefix(phonenumbers.Format(parsed, phonenumbers.E164), "+"), nil
}

func validInternational(digits string) bool {
	parsed, err := phonenumbers.Parse("+"+digits, "")
	return err == nil && phonenumbers.IsValidNumber(parsed)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
