// Package enrich coordinates the three provider calls that turn an image
// into a title, a tag list, and an alt-text caption, and applies the
// normalization and fallback rules that keep bad model output out of the
// catalog.
package enrich

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTitleLen = 60
	maxTags     = 12
	altTagCount = 6
)

var (
	edgePunct   = regexp.MustCompile(`^[[:punct:]\s]+|[[:punct:]\s]+$`)
	lineBreaks  = regexp.MustCompile(`[\r\n]+`)
	hexToken    = regexp.MustCompile(`\b[0-9a-f]{6,}\b`)
	extPattern  = regexp.MustCompile(`\.[A-Za-z0-9]{2,4}`)
	tagStripper = regexp.MustCompile(`[^a-zA-Z0-9\s\-/]`)
)

// StripExt removes the final extension from a filename. A leading dot
// (hidden file) is not treated as an extension.
func StripExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// NormalizeTitle cleans a model-generated title: line breaks collapse to
// spaces, surrounding punctuation is stripped, and the result is truncated
// to 60 characters. Output that looks like a leaked filename or asset hash
// (an underscore, a 6+ character hex run, or a stock-photo marker) is
// rejected as empty.
func NormalizeTitle(s string) string {
	s = strings.TrimSpace(lineBreaks.ReplaceAllString(s, " "))
	s = edgePunct.ReplaceAllString(s, "")
	if utf8.RuneCountInString(s) > maxTitleLen {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:maxTitleLen]))
	}

	low := strings.ToLower(s)
	if strings.Contains(low, "pexels") || strings.Contains(s, "_") || hexToken.MatchString(low) {
		return ""
	}
	return s
}

// LooksLikeFilename reports whether a candidate title resembles a raw
// filename rather than a human title: an extension-like suffix, six or
// more digits, three or more dash/underscore separators, or an
// implausible length.
func LooksLikeFilename(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return true
	}
	if extPattern.MatchString(t) {
		return true
	}
	var digits, seps int
	for _, r := range t {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '-' || r == '_':
			seps++
		}
	}
	if digits >= 6 || seps >= 3 {
		return true
	}
	return len(t) < 4 || len(t) > 120
}

// ChooseTitle picks the final post title: the AI title when it passed
// normalization and does not look like a filename, otherwise the original
// filename with its extension stripped. Either way the first rune is
// capitalized.
func ChooseTitle(aiTitle, baseName string) string {
	candidate := strings.TrimSpace(aiTitle)
	if candidate == "" || LooksLikeFilename(candidate) {
		candidate = baseName
	}
	return capitalize(candidate)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// NormalizeTags turns a raw model tag line into the canonical stored
// form: split on commas and newlines, trim, strip everything but
// alphanumerics, spaces, dashes and slashes, lowercase, drop blanks,
// deduplicate keeping first occurrence, cap at 12, rejoin with ", ".
func NormalizeTags(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tag := strings.ToLower(strings.TrimSpace(tagStripper.ReplaceAllString(strings.TrimSpace(p), "")))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return strings.Join(tags, ", ")
}

// AltTextFromTags synthesizes a fallback caption from the first six tags,
// space-joined. Returns "" when there are no tags to work with.
func AltTextFromTags(tags string) string {
	parts := strings.Split(tags, ",")
	words := make([]string, 0, altTagCount)
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		words = append(words, t)
		if len(words) == altTagCount {
			break
		}
	}
	return strings.Join(words, " ")
}
