package identity

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers supplied without a country code
var DefaultPhoneRegion = "US"

// NormalizePhone canonicalizes a phone identifier to E.164 so the same number
// always hits the same stored row regardless of input formatting. Unparseable
// input is returned trimmed; the store lookup will simply miss.
func NormalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	num, err := phonenumbers.Parse(trimmed, DefaultPhoneRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(num) {
		return trimmed
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
