package gateway

import (
	"regexp"
	"strings"
)

var reservedSlugs = map[string]bool{
	"api":     true,
	"admin":   true,
	"r":       true,
	"v1":      true,
	"health":  true,
	"metrics": true,
}

var slugRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// ValidSlug reports whether slug could name a link.
func ValidSlug(slug string) bool {
	if reservedSlugs[strings.ToLower(slug)] {
		return false
	}
	return slugRegex.MatchString(slug)
}
