// Package slug builds URL- and key-safe identifiers and folds text for matching.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLength = 100

var (
	nonSlugChars    = regexp.MustCompile("[^a-z0-9-]+")
	repeatedHyphens = regexp.MustCompile("-+")
)

// Generate creates a URL-friendly slug from a string
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = Fold(s)

	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")

	s = nonSlugChars.ReplaceAllString(s, "")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], "-")
	}

	return s
}

// GenerateWithFallback generates a slug, falling back to a default if the input produces an empty slug
func GenerateWithFallback(s, fallback string) string {
	slug := Generate(s)
	if slug == "" {
		return Generate(fallback)
	}
	return slug
}

// Fold lowercases s and strips diacritics, so "Café" and "cafe" compare equal.
// Characters without an ASCII decomposition are kept as-is.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// Key joins slugged parts with "/" into an object-storage key, skipping parts that slug to nothing
func Key(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if segment := Generate(part); segment != "" {
			segments = append(segments, segment)
		}
	}
	return strings.Join(segments, "/")
}
