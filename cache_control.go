package qsapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// cacheDirectives holds the parsed Cache-Control directives relevant to the
// response cache.
type cacheDirectives struct {
	noStore bool
	noCache bool
	private bool
	maxAge  *time.Duration
	sMaxAge *time.Duration
}

func parseCacheControl(header string) cacheDirectives {
	var d cacheDirectives
	if header == "" {
		return d
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, hasValue := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))

		switch key {
		case "no-store":
			d.noStore = true
		case "no-cache":
			d.noCache = true
		case "private":
			d.private = true
		case "max-age", "s-maxage":
			if !hasValue {
				continue
			}
			seconds, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
			if err != nil || seconds < 0 {
				continue
			}
			age := time.Duration(seconds) * time.Second
			if key == "max-age" {
				d.maxAge = &age
			} else {
				d.sMaxAge = &age
			}
		}
	}
	return d
}

// cacheTTLFor decides whether a response may be stored and under which TTL.
// Cache-Control directives override the configured default; no-store, no-cache
// and private suppress storage entirely.
func cacheTTLFor(header http.Header, defaultTTL time.Duration) (time.Duration, bool) {
	d := parseCacheControl(header.Get("Cache-Control"))
	if d.noStore || d.noCache || d.private {
		return 0, false
	}
	if d.sMaxAge != nil {
		return *d.sMaxAge, *d.sMaxAge > 0
	}
	if d.maxAge != nil {
		return *d.maxAge, *d.maxAge > 0
	}
	return defaultTTL, defaultTTL > 0
}
