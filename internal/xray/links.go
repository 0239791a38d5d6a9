package xray

import "regexp"

// The payload alphabet covers standard and URL-safe base64, so a match stops
// at whitespace and punctuation around a pasted link.
var vmessLinkPattern = regexp.MustCompile(`\b(?:vmess|vemss)://[A-Za-z0-9_\-+/=]+`)

// ExtractLinks returns every VMess link found in text, in order, without duplicates.
func ExtractLinks(text string) []string {
	links := []string{}
	seen := make(map[string]struct{})
	for _, match := range vmessLinkPattern.FindAllString(text, -1) {
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		links = append(links, match)
	}
	return links
}

// ExtractVMessLink returns the first VMess link in pasted text.
func ExtractVMessLink(text string) (string, bool) {
	match := vmessLinkPattern.FindString(text)
	return match, match != ""
}
