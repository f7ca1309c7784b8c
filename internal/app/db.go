package app

import (
	"net/url"
	"regexp"
	"strings"
)

// Connection-string plumbing for the otelsqlx open path: the pgbouncer
// prepared-statement quirk and the db/query attributes that end up on spans.

const maxTracedQueryLength = 512

var collapseWhitespace = regexp.MustCompile(`\s+`)

// normalizeDBURL forces disable_prepared_binary_result=yes when requested;
// lib/pq needs it behind a transaction-pooling pgbouncer.
func normalizeDBURL(raw string, disablePreparedBinaryResult bool) string {
	if !disablePreparedBinaryResult {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	query := parsed.Query()
	if query.Get("disable_prepared_binary_result") != "" {
		return raw
	}
	query.Set("disable_prepared_binary_result", "yes")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// dbNameFromURL extracts the database name for the span attribute. Accepts
// both URL and key=value connection strings.
func dbNameFromURL(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if parsed, err := url.Parse(trimmed); err == nil && parsed != nil && parsed.Scheme != "" {
		if name := strings.Trim(parsed.Path, "/ "); name != "" {
			return name
		}
	}

	for _, field := range strings.Fields(trimmed) {
		key, value, found := strings.Cut(field, "=")
		if !found || key != "dbname" {
			continue
		}
		if name := strings.Trim(value, `"' `); name != "" {
			return name
		}
	}
	return ""
}

// formatDBQueryForTrace collapses whitespace and truncates long statements so
// traced queries stay one readable line.
func formatDBQueryForTrace(query string) string {
	normalized := collapseWhitespace.ReplaceAllString(strings.TrimSpace(query), " ")
	if len(normalized) > maxTracedQueryLength {
		return normalized[:maxTracedQueryLength] + "..."
	}
	return normalized
}
