package crm

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhone is returned when a number cannot be parsed or is not a
// valid subscriber number.
var ErrInvalidPhone = errors.New("crm: invalid phone number")

// NormalizePhone parses a raw phone number and returns it in E.164 form.
// Numbers without a leading + are parsed against the US region, matching
// how contact numbers arrive from the voicebot vendor.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	region := "US"
	if strings.HasPrefix(raw, "+") {
		region = ""
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// phoneVariants returns the lookup candidates for a CRM search: the E.164
// form plus the bare national digits, since CRM records are not always
// stored normalized.
func phoneVariants(e164 string) []string {
	variants := []string{e164}
	if num, err := phonenumbers.Parse(e164, ""); err == nil {
		national := phonenumbers.Format(num, phonenumbers.NATIONAL)
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, national)
		if digits != "" && digits != strings.TrimPrefix(e164, "+") {
			variants = append(variants, digits)
		}
	}
	return variants
}
