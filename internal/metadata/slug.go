package metadata

import (
	"regexp"
	"strings"
)

// MaxSlugLength bounds slug length in bytes.
const MaxSlugLength = 50

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, collapses every run of characters outside [a-z0-9]
// into a single hyphen, trims hyphens and truncates to MaxSlugLength.
// Slugify(Slugify(s)) == Slugify(s).
func Slugify(s string) string {
	slug := nonSlugRun.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}
