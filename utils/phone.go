package utils

import (
	"strings"
)

// DefaultCountryCode is prepended to bare national numbers.
const DefaultCountryCode = "52"

// legacyMobilePrefix is the old "1" mobile marker some listings still show
// between the country code and the national number.
const legacyMobilePrefix = DefaultCountryCode + "1"

const canonicalPhoneLen = len(DefaultCountryCode) + 10

// DigitsOnly strips everything that is not an ASCII digit.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone returns the canonical <country><national> digit string for
// a scraped phone, or "" when the number cannot be sent to.
func NormalizePhone(raw string) string {
	digits := DigitsOnly(raw)
	hasCountry := strings.HasPrefix(digits, DefaultCountryCode)

	switch {
	case len(digits) == 10:
		return DefaultCountryCode + digits
	case len(digits) == canonicalPhoneLen && hasCountry:
		return digits
	case len(digits) == canonicalPhoneLen+1 && strings.HasPrefix(digits, legacyMobilePrefix):
		return DefaultCountryCode + digits[len(legacyMobilePrefix):]
	case len(digits) > canonicalPhoneLen && hasCountry:
		return digits[:canonicalPhoneLen]
	}
	return ""
}
