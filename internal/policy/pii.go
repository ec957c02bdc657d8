// Package policy masks personal data before it reaches logs.
package policy

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern *regexp.Regexp
	marker  string
}

// Card numbers are matched before phones so long digit runs are not
// reported as phone numbers.
var rules = []rule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII replaces email addresses, card numbers and phone numbers in free
// text with fixed markers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		out = r.pattern.ReplaceAllString(out, r.marker)
	}
	return out, out != input
}

// MaskPhone keeps the last four digits of a phone number so operators can
// tell leads apart in logs.
func MaskPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	switch {
	case len(digits) == 0:
		return ""
	case len(digits) <= 4:
		return strings.Repeat("*", len(digits))
	default:
		return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
	}
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
