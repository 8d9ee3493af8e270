// Package runstore persists collection runs: one directory per run holding
// the query, each engine's answer with a metadata header, and the synthesis,
// plus a SQLite index of past runs for quick history listing.
package runstore

import (
	"strings"
	"time"
	"unicode"
)

// maxSlugLen bounds the query-derived part of a folder name so deep queries
// cannot overflow path limits.
const maxSlugLen = 48

// Slug normalizes a query into a filesystem-safe identifier: lowercased,
// runs of non-alphanumerics collapsed to single hyphens, truncated, trailing
// hyphens stripped. Deterministic: the same query always maps to the same
// slug, and queries differing only in case or punctuation collide on
// purpose.
func Slug(query string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}

	s := b.String()
	if runes := []rune(s); len(runes) > maxSlugLen {
		s = string(runes[:maxSlugLen])
	}
	s = strings.TrimRight(s, "-")
	if s == "" {
		s = "query"
	}
	return s
}

// FolderID derives the run directory name: a UTC timestamp prefix for
// chronological sorting plus the query slug for human recognition.
func FolderID(query string, startedAt time.Time) string {
	return startedAt.UTC().Format("20060102T150405Z") + "_" + Slug(query)
}
