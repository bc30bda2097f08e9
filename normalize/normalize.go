// Package normalize canonicalizes extracted document text before it is indexed.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// C0 controls except tab, newline and carriage return, plus DEL and the C1 block
	controlCharRegex = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x9f]`)

	// ASCII whitespace plus every Unicode separator
	whitespaceRegex = regexp.MustCompile(`[\s\p{Z}\x{0085}]+`)
)

// Text applies NFKC, replaces control characters with a space, collapses
// whitespace runs and trims the result. Every extractor's output goes through it.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = controlCharRegex.ReplaceAllLiteralString(s, " ")
	s = whitespaceRegex.ReplaceAllLiteralString(s, " ")
	return strings.TrimSpace(s)
}
