package leads

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "US"

var ErrInvalidPhone = errors.New("leads: invalid phone number")

// NormalizeE164 formats a phone number to E.164.
func NormalizeE164(number, region string) (string, error) {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return "", ErrInvalidPhone
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// IDFromPhone derives the lead id of a caller: the E.164 digits without the plus sign.
// The same caller gets the same id in every tenant, which is why leads are keyed by (tenant, lead).
func IDFromPhone(number, region string) (string, error) {
	e164, err := NormalizeE164(number, region)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(e164, "+"), nil
}
