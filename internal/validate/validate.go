// Package validate holds the pure validation and sanitization helpers used
// before anything touches the store: URL allow/deny checks, credential
// stripping, domain matching, and user-text cleanup.
package validate

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Length caps applied to user-supplied text.
const (
	MaxNameLength        = 100
	MaxTagLength         = 30
	MaxDescriptionLength = 500
	MaxFolderNameLength  = 50
)

// Deterministic fallbacks for empty input.
const (
	FallbackSessionName = "Unnamed Session"
	FallbackFolderName  = "New Folder"
)

// allowedSchemes are the only protocols a tab URL may carry. Everything not
// listed here is rejected, even schemes that are not explicitly denied.
var allowedSchemes = map[string]bool{
	"http":             true,
	"https":            true,
	"chrome-extension": true,
}

// deniedSchemes are rejected explicitly; kept separate from the allow-list so
// tests can assert the deny decision directly.
var deniedSchemes = map[string]bool{
	"javascript": true,
	"data":       true,
	"file":       true,
	"vbscript":   true,
	"about":      true,
	"blob":       true,
}

var textPolicy = bluemonday.StrictPolicy()

// IsValidURL reports whether the string parses as a URL whose scheme is on
// the allow-list. Fails closed: unparsable strings and unknown schemes are
// rejected.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" || deniedSchemes[scheme] {
		return false
	}
	return allowedSchemes[scheme]
}

// SanitizeURL returns the canonical URL string with embedded credentials
// stripped, or "" if the URL is not valid.
func SanitizeURL(raw string) string {
	if !IsValidURL(raw) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	return u.String()
}

// ExtractDomain returns the hostname of a URL, or "unknown" when the URL
// cannot be parsed. Never fails.
func ExtractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// MatchesDomainPattern reports whether the URL's hostname matches the
// pattern. A leading "*." wildcard matches the bare domain and any
// subdomain; otherwise the match is exact. Case-insensitive on both sides.
func MatchesDomainPattern(raw, pattern string) bool {
	host := ExtractDomain(raw)
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" || host == "unknown" {
		return false
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return host == pattern
}

// SanitizeSessionName trims, caps, and strips markup and control characters
// from a session name, falling back to a deterministic default.
func SanitizeSessionName(name string) string {
	return sanitizeText(name, MaxNameLength, FallbackSessionName)
}

// SanitizeFolderName is SanitizeSessionName with folder limits.
func SanitizeFolderName(name string) string {
	return sanitizeText(name, MaxFolderNameLength, FallbackFolderName)
}

// SanitizeDescription cleans a free-text description. Empty input stays
// empty; descriptions are optional.
func SanitizeDescription(desc string) string {
	return sanitizeText(desc, MaxDescriptionLength, "")
}

// SanitizeTag lowercases and cleans a single tag. Returns "" for unusable
// input so callers can drop it.
func SanitizeTag(tag string) string {
	return strings.ToLower(sanitizeText(tag, MaxTagLength, ""))
}

// SanitizeTags caps the list at maxTags, sanitizes each entry, drops
// empties, and deduplicates preserving first occurrence order.
func SanitizeTags(tags []string, maxTags int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		if maxTags > 0 && len(out) >= maxTags {
			break
		}
		tag := SanitizeTag(raw)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func sanitizeText(s string, maxLen int, fallback string) string {
	s = textPolicy.Sanitize(s)
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxLen {
		s = strings.TrimSpace(string(runes[:maxLen]))
	}
	if s == "" {
		return fallback
	}
	return s
}
