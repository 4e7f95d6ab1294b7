// Package types provides type definitions for structured data used throughout the idea-forge system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"
	"unicode"
)

// MaxSlugLength is the maximum number of characters in a derived slug.
const MaxSlugLength = 50

// Idea is a single unit of work: a title plus a free-form description.
type Idea struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty"`
}

// Slug returns the filesystem-safe identifier for the idea, derived from its title.
func (i Idea) Slug() string {
	return Slugify(i.Title)
}

// Text returns the full idea text handed to the analyst.
func (i Idea) Text() string {
	if i.Description == "" {
		return i.Title
	}
	return i.Title + "\n\n" + i.Description
}

// Slugify derives a lowercase, hyphen-joined identifier from text.
// Runs of characters that are not ASCII letters or digits collapse into a single hyphen,
// leading and trailing hyphens are dropped, and the result is capped at MaxSlugLength
// characters without a trailing hyphen. Distinct inputs may map to the same slug.
func Slugify(text string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(text) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = slug[:MaxSlugLength]
	}
	return strings.TrimRight(slug, "-")
}
