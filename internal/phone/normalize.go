// Package phone canonicalizes raw phone input into E.164 form.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotNormalizable is returned when input cannot be reduced to an E.164 number.
var ErrNotNormalizable = errors.New("phone: not normalizable")

// DefaultCountry is used when Normalize receives an empty country hint.
const DefaultCountry = "NG"

const (
	minDigits = 10
	maxDigits = 15
)

var e164Re = regexp.MustCompile(`^\+[1-9][0-9]{9,14}$`)

// countryRule describes how local numbers of one country are rewritten.
// An empty mobilePrefixes set accepts any leading digit for bare subscriber numbers.
type countryRule struct {
	callingCode    string
	trunkPrefix    string
	nsnLength      int
	mobilePrefixes string
}

var rules = map[string]countryRule{
	"NG": {callingCode: "234", trunkPrefix: "0", nsnLength: 10, mobilePrefixes: "789"},
	"GH": {callingCode: "233", trunkPrefix: "0", nsnLength: 9, mobilePrefixes: "235"},
	"KE": {callingCode: "254", trunkPrefix: "0", nsnLength: 9, mobilePrefixes: "17"},
	"ZA": {callingCode: "27", trunkPrefix: "0", nsnLength: 9, mobilePrefixes: "678"},
	"GB": {callingCode: "44", trunkPrefix: "0", nsnLength: 10, mobilePrefixes: "7"},
	"US": {callingCode: "1", nsnLength: 10},
}

// Normalize strips formatting from raw and returns the E.164 form ("+" followed by
// 10 to 15 digits). countryHint is an ISO 3166 alpha-2 code selecting the local
// rewrite rules; empty means DefaultCountry. Input with a "+" or "00" prefix is
// taken as already international. Anything with fewer than 10 digits is rejected.
func Normalize(raw, countryHint string) (string, error) {
	raw = strings.TrimSpace(raw)
	digits := stripNonDigits(raw)
	if len(digits) < minDigits {
		return "", ErrNotNormalizable
	}

	if strings.HasPrefix(raw, "+") {
		return international(digits)
	}
	if strings.HasPrefix(digits, "00") {
		return international(digits[2:])
	}

	country := strings.ToUpper(strings.TrimSpace(countryHint))
	if country == "" {
		country = DefaultCountry
	}
	if rule, ok := rules[country]; ok {
		if e164, ok := rule.rewrite(digits); ok {
			return e164, nil
		}
	}
	return international(digits)
}

// IsE164 reports whether s is already in the form Normalize produces.
func IsE164(s string) bool {
	return e164Re.MatchString(s)
}

// SupportedCountry reports whether country has local rewrite rules.
func SupportedCountry(country string) bool {
	_, ok := rules[strings.ToUpper(strings.TrimSpace(country))]
	return ok
}

func (r countryRule) rewrite(digits string) (string, bool) {
	n := len(digits)
	switch {
	case r.trunkPrefix != "" && strings.HasPrefix(digits, r.trunkPrefix) && n == len(r.trunkPrefix)+r.nsnLength:
		return "+" + r.callingCode + digits[len(r.trunkPrefix):], true
	case n == r.nsnLength && r.isMobilePrefix(digits[0]):
		return "+" + r.callingCode + digits, true
	case strings.HasPrefix(digits, r.callingCode) && n == len(r.callingCode)+r.nsnLength:
		return "+" + digits, true
	}
	return "", false
}

func (r countryRule) isMobilePrefix(d byte) bool {
	return r.mobilePrefixes == "" || strings.IndexByte(r.mobilePrefixes, d) >= 0
}

func international(digits string) (string, error) {
	if len(digits) < minDigits || len(digits) > maxDigits || digits[0] == '0' {
		return "", ErrNotNormalizable
	}
	return "+" + digits, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
