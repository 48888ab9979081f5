package gid

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Length is the exact length of every valid gid
const Length = 118

// QueryParameter is the name of the URL parameter carrying the gid
const QueryParameter = "gid_"

var (
	ErrEmpty   = errors.New("no gid was provided")
	ErrInvalid = errors.New("the gid is malformed (expected 118 alphanumeric characters)")
)

var (
	// Pattern matches any URL text containing a gid parameter.
	// It is used to wait for the browser to reach a gid-bearing URL.
	Pattern = regexp.MustCompile(`gid_=[A-Za-z0-9]{118}`)

	// The trailing group makes sure over-long values are not matched in truncated form
	scanPattern = regexp.MustCompile(`(?:[?&#]|^)gid_=([A-Za-z0-9]{118})(?:[^A-Za-z0-9]|$)`)
)

// Valid reports whether s is a well-formed gid
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// Validate trims the given value and checks that it is a well-formed gid.
// It returns the trimmed gid on success.
func Validate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}
	if !Valid(s) {
		return "", ErrInvalid
	}
	return s, nil
}

// Extract looks for a gid inside the given URL.
// The query string is checked first, then the fragment (interpreted as a query string) and finally the raw URL text.
// Only the first value of a parameter is considered in the first two steps.
func Extract(rawURL string) (string, bool) {
	if parsed, err := url.Parse(rawURL); err == nil {
		if value := parsed.Query().Get(QueryParameter); Valid(value) {
			return value, true
		}
		if parsed.Fragment != "" {
			// Errors are ignored on purpose, ParseQuery still returns every well-formed pair
			fragment, _ := url.ParseQuery(parsed.EscapedFragment())
			if value := fragment.Get(QueryParameter); Valid(value) {
				return value, true
			}
		}
	}

	match := scanPattern.FindStringSubmatch(rawURL)
	if match != nil && Valid(match[1]) {
		return match[1], true
	}
	return "", false
}
