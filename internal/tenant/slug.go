package tenant

import (
	"regexp"
	"strings"
)

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9]+`)
	slugTrimDash = regexp.MustCompile(`^-+|-+$`)
)

// Slugify turns a company name into a url- and identifier-safe slug. The
// slug feeds the tenant database name, so the charset is restricted to
// lowercase alphanumerics and single dashes.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugTrimDash.ReplaceAllString(s, "")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// DatabaseNameForSlug derives the tenant database name from a slug.
// Postgres identifiers disallow dashes without quoting, so they are
// replaced with underscores.
func DatabaseNameForSlug(slug string) string {
	return "tenant_" + strings.ReplaceAll(slug, "-", "_")
}
