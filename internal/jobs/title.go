package jobs

import (
	"regexp"
	"strings"
)

// UntitledTitle is used whenever a subject yields no usable text.
const UntitledTitle = "Untitled"

var (
	jobTagPattern     = regexp.MustCompile(`\[J:\d+\]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeTitle turns an inbound e-mail subject into a job title.
func NormalizeTitle(subject *string) string {
	if subject == nil {
		return UntitledTitle
	}
	return NormalizeTitleString(*subject)
}

// NormalizeTitleString strips every [J:<digits>] tag, collapses whitespace
// and falls back to UntitledTitle.
func NormalizeTitleString(subject string) string {
	cleaned := jobTagPattern.ReplaceAllString(subject, "")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return UntitledTitle
	}
	return cleaned
}
