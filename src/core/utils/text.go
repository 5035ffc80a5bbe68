package utils

import (
	"regexp"
	"strings"
)

var (
	markdownChars = regexp.MustCompile("[`*_>#\\-]")
	imageLink     = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	inlineLink    = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
)

// StripMarkdown removes markdown formatting so text reads cleanly when spoken.
// Image links are dropped entirely; inline links keep their text. Image
// removal runs before link rewriting so ![alt](url) is not mistaken for a
// plain link.
func StripMarkdown(text string) string {
	text = markdownChars.ReplaceAllString(text, "")
	text = imageLink.ReplaceAllString(text, "")
	text = inlineLink.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
