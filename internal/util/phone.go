package util

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizePhone parses p (national numbers resolved against region) and
// returns it in E.164 form.
func NormalizePhone(p, region string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty phone number")
	}
	num, err := libphonenumber.Parse(p, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", p, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("phone number %q is not valid", p)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
