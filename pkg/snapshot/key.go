package snapshot

import (
	"fmt"
	"net/url"
)

// Key derives the cache key for a location.
// Format: escaped path followed by the query string with its leading '?'.
//
// Paths are not normalised and fragments are ignored:
//
//	/a?x=1#top  -> /a?x=1
//	/a/         -> /a/
//	/a?         -> /a
func Key(u *url.URL) string {
	if u == nil {
		return ""
	}

	path := u.EscapedPath()
	if path == "" && u.Host != "" {
		path = "/"
	}

	if u.RawQuery == "" {
		return path
	}
	return path + "?" + u.RawQuery
}

// KeyFromString parses a raw URL or path and derives its cache key.
func KeyFromString(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse location %q: %w", raw, err)
	}
	return Key(u), nil
}
