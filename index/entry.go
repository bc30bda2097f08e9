// Package index builds, writes and parses the consolidated document index
// artifact.
package index

import (
	"unicode/utf8"

	"procdocs/extract"
)

// Entry is one indexed document.
type Entry struct {
	Title     string // relative path with forward slashes, or zip://archive/inner
	Format    string // short format tag: pdf, docx, txt, ...
	Source    string // usually equal to Title
	Body      string
	CharCount int   // -1 when the artifact carried no parsable count
	Size      int64 // size of the source file in bytes
	Group     string
}

// NewEntry builds an entry from extracted text. Failure placeholders count as
// zero characters so reconciliation flags them.
func NewEntry(title, format, body string, size int64) Entry {
	chars := utf8.RuneCountInString(body)
	if extract.IsDiagnostic(body) {
		chars = 0
	}
	return Entry{
		Title:     title,
		Format:    format,
		Source:    title,
		Body:      body,
		CharCount: chars,
		Size:      size,
	}
}

// LiteralText is document text the artifact writer copies verbatim. The
// writer only ever appends it; it is never used as a pattern or template.
type LiteralText struct {
	s string
}

// Literal wraps extracted text for the writer.
func Literal(s string) LiteralText {
	return LiteralText{s: s}
}

func (t LiteralText) String() string {
	return t.s
}
