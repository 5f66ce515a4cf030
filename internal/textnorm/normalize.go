// Package textnorm provides the string-cleaning utilities shared by every
// pipeline stage: statute name normalization, base-name extraction for
// lineage matching, and jurisdiction canonicalization.
//
// All functions are pure, deterministic, and idempotent — re-normalizing
// an already-normalized value is a no-op.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// UnknownName is the sentinel returned for empty or unusable input.
const UnknownName = "UNKNOWN"

// UnknownJurisdiction is the default jurisdiction for unclassified documents.
const UnknownJurisdiction = "unknown"

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^\w\s\-.()]`)

	// Amendment/revision qualifiers stripped by ExtractBaseName. Year tokens
	// outside these markers are preserved so that "Companies Act 1984" and
	// "Companies Act 2017" stay distinct base names.
	amendmentMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\(\s*amend(?:ment|ed)[^)]*\)`),
		regexp.MustCompile(`(?i)\(\s*revis(?:ed|ion)[^)]*\)`),
		regexp.MustCompile(`(?i)\(\s*no\.?\s*\d+\s*\)`),
		regexp.MustCompile(`(?i)\bamendment(\s+\d{4})?\s*$`),
	}

	amendmentHint = regexp.MustCompile(`(?i)\bamend(?:ment|ed|ing)\b|\(\s*revis(?:ed|ion)`)

	yearToken = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

	provinceAliases = map[string]string{
		"kpk":                           "khyber pakhtunkhwa",
		"nwfp":                          "khyber pakhtunkhwa",
		"north west frontier province":  "khyber pakhtunkhwa",
		"ict":                           "islamabad",
		"islamabad capital territory":   "islamabad",
		"ajk":                           "azad jammu and kashmir",
		"azad kashmir":                  "azad jammu and kashmir",
		"gb":                            "gilgit-baltistan",
		"gilgit baltistan":              "gilgit-baltistan",
		"federal government":            "federal",
		"federation":                    "federal",
	}
)

// CollapseWhitespace trims the string and collapses internal whitespace runs
// to single spaces.
func CollapseWhitespace(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NormalizeName produces the canonical display form of a statute title.
// Empty input yields UnknownName; the function never fails.
func NormalizeName(raw string) string {
	s := CollapseWhitespace(raw)
	if s == "" {
		return UnknownName
	}

	s = stripLeadingArticles(s)
	s = titleCase(s)
	s = disallowed.ReplaceAllString(s, "")
	s = CollapseWhitespace(s)
	if s == "" {
		return UnknownName
	}
	return s
}

// ExtractBaseName returns the grouping key form of a statute title:
// NormalizeName plus amendment/revision qualifiers removed. Trailing years
// are kept unless they were part of a matched amendment marker.
func ExtractBaseName(raw string) string {
	s := NormalizeName(raw)
	if s == UnknownName {
		return s
	}

	for _, marker := range amendmentMarkers {
		s = marker.ReplaceAllString(s, "")
	}

	s = CollapseWhitespace(s)
	if s == "" {
		return UnknownName
	}
	return s
}

// StripYearTokens removes four-digit year tokens (1800-2099) from a name
// and re-collapses whitespace. Used where a lineage match must tolerate
// an amending instrument carrying its own year.
func StripYearTokens(name string) string {
	return CollapseWhitespace(yearToken.ReplaceAllString(name, ""))
}

// HasAmendmentMarker reports whether a title looks like an amending
// instrument rather than an original enactment.
func HasAmendmentMarker(name string) bool {
	return amendmentHint.MatchString(name)
}

// TitleYear extracts the last plausible year token (1800–2099) from a title,
// or 0 if none is present.
func TitleYear(name string) int {
	matches := yearToken.FindAllString(name, -1)
	if len(matches) == 0 {
		return 0
	}
	year, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil {
		return 0
	}
	return year
}

// NormalizeJurisdiction lowercases and canonicalizes a jurisdiction or
// province value. Empty input yields UnknownJurisdiction.
func NormalizeJurisdiction(raw string) string {
	s := strings.ToLower(CollapseWhitespace(raw))
	if s == "" {
		return UnknownJurisdiction
	}
	if canonical, ok := provinceAliases[s]; ok {
		return canonical
	}
	return s
}

// stripLeadingArticles removes leading determiner tokens ("The", "An", "A").
// Stripping repeats so the result is stable under re-normalization.
func stripLeadingArticles(s string) string {
	for {
		lower := strings.ToLower(s)
		stripped := false
		for _, article := range []string{"the ", "an ", "a "} {
			if strings.HasPrefix(lower, article) && len(s) > len(article) {
				s = strings.TrimSpace(s[len(article):])
				stripped = true
				break
			}
		}
		if !stripped || s == "" {
			return s
		}
	}
}

// titleCase capitalizes the letter following every non-letter boundary and
// lowercases the rest, so "COMPANIES ACT (amendment)" becomes
// "Companies Act (Amendment)".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}
