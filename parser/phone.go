package parser

import (
	"regexp"
	"strings"
)

// Extraction strategies for phone numbers, tried in order by the
// revealer: tel-link href first, then visible-text pattern. Each is a
// pure function over markup/text so precedence stays auditable.

var (
	telLinkRe = regexp.MustCompile(`href="tel:([^"]+)"`)

	// Irish mobiles: national 08x format or international +353 prefix.
	irishMobileRe = regexp.MustCompile(`(08[35679]\s?\d{7})|(\+?353\s?8[35679]\s?\d{7})`)
)

// PhoneFromTelLink scans rendered markup for a tel: anchor and returns
// the href payload byte-for-byte, minus the scheme prefix.
func PhoneFromTelLink(markup string) (string, bool) {
	m := telLinkRe.FindStringSubmatch(markup)
	if m == nil {
		return "", false
	}
	return strings.TrimPrefix(m[1], "tel:"), true
}

// PhoneFromText scans free text (typically a reveal button's label) for
// a phone-number-shaped substring.
func PhoneFromText(text string) (string, bool) {
	m := irishMobileRe.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}
