package scrape

import (
	"net/url"
	"strings"
)

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText normalizes whitespace (alias for normalizeSpace)
func cleanText(s string) string {
	return normalizeSpace(s)
}

// sanitizeUTF8 drops invalid byte sequences so values can be stored safely.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

// absoluteURL resolves a possibly relative href against the page it was
// extracted from. Invalid inputs are returned unchanged; extraction is
// best-effort and the row filter decides what to drop.
func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// originOf returns scheme://host for a URL, used as a spoofed Referer for
// sites that reject referer-less requests.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// appendUnique appends a string to a slice if it doesn't already exist.
func appendUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
