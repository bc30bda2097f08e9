package index

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"procdocs/config"
)

// Artifact syntax
const (
	Bar         = "==============================="
	LabelTitle  = "ЗАГОЛОВОК:"
	LabelFormat = "Формат:"
	LabelChars  = "Символов:"
	LabelSize   = "Размер:"
	LabelSource = "Источник:"
	BeginMarker = "<<< НАЧАЛО ДОКУМЕНТА >>>"
	EndMarker   = "<<< КОНЕЦ ДОКУМЕНТА >>>"
	GroupLabel  = "[ГРУППА:"

	escapeChar = '\\'
)

// GroupHeader returns the "[ГРУППА: TIER]" line
func GroupHeader(tier config.Tier) string {
	return GroupLabel + " " + string(tier) + "]"
}

// GroupBegin returns the "<!-- BEGIN_TIER -->" line
func GroupBegin(tier config.Tier) string {
	return "<!-- BEGIN_" + string(tier) + " -->"
}

// GroupEnd returns the "<!-- END_TIER -->" line
func GroupEnd(tier config.Tier) string {
	return "<!-- END_" + string(tier) + " -->"
}

// isBar matches one or more '=' optionally followed by whitespace
func isBar(line string) bool {
	line = strings.TrimRight(line, " \t\r")
	return line != "" && strings.Trim(line, "=") == ""
}

func isDocMarker(line string) bool {
	line = strings.TrimSpace(line)
	return line == BeginMarker || line == EndMarker
}

func isGroupMarker(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, GroupLabel) && strings.HasSuffix(line, "]"):
		return true
	case strings.HasPrefix(line, "<!-- BEGIN_") && strings.HasSuffix(line, " -->"):
		return true
	case strings.HasPrefix(line, "<!-- END_") && strings.HasSuffix(line, " -->"):
		return true
	}
	return false
}

// isStructural reports whether a line would be read as artifact syntax
func isStructural(line string) bool {
	return isBar(line) || isDocMarker(line) || isGroupMarker(line)
}

// escapedForm reports whether line, once its leading backslashes are
// removed, is artifact syntax. Such body lines get one extra backslash on
// write and lose one on read.
func escapedForm(line string) bool {
	return isStructural(strings.TrimLeft(line, string(escapeChar)))
}

func unescapeLine(line string) string {
	if len(line) > 0 && line[0] == escapeChar && escapedForm(line) {
		return line[1:]
	}
	return line
}

// Writer serializes entries in the artifact format.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) line(s string) {
	if w.err != nil {
		return
	}
	if _, err := w.w.WriteString(s); err != nil {
		w.err = err
		return
	}
	w.err = w.w.WriteByte('\n')
}

// WriteEntry appends one entry: header block, markers and body.
func (w *Writer) WriteEntry(e Entry) error {
	w.line(Bar)
	w.line(LabelTitle + " " + singleLine(e.Title))
	w.line(fmt.Sprintf("%s %s | %s %d | %s %d", LabelFormat, singleLine(e.Format), LabelChars, e.CharCount, LabelSize, e.Size))
	w.line(LabelSource + " " + singleLine(e.Source))
	w.line(Bar)
	w.line(BeginMarker)
	w.appendBody(Literal(e.Body))
	w.line(EndMarker)
	w.line("")
	return w.err
}

// appendBody copies body text line by line, escaping lines that would
// otherwise be read back as artifact syntax.
func (w *Writer) appendBody(body LiteralText) {
	text := body.String()
	if text == "" {
		return
	}
	for _, l := range strings.Split(text, "\n") {
		if escapedForm(l) {
			if w.err == nil {
				w.err = w.w.WriteByte(escapeChar)
			}
		}
		w.line(l)
	}
}

// BeginGroup opens a speed-tier group.
func (w *Writer) BeginGroup(tier config.Tier) error {
	w.line(GroupHeader(tier))
	w.line(GroupBegin(tier))
	return w.err
}

// EndGroup closes a speed-tier group.
func (w *Writer) EndGroup(tier config.Tier) error {
	w.line(GroupEnd(tier))
	w.line("")
	return w.err
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// singleLine keeps header values on one line
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// parseMetadata reads "Формат: pdf | Символов: 12 | Размер: 345"
func parseMetadata(line string, e *Entry) {
	parts := strings.Split(line, "|")
	e.Format = strings.TrimSpace(strings.TrimPrefix(parts[0], LabelFormat))
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, LabelChars):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(p, LabelChars))); err == nil && n >= 0 {
				e.CharCount = n
			}
		case strings.HasPrefix(p, LabelSize):
			if n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(p, LabelSize)), 10, 64); err == nil {
				e.Size = n
			}
		}
	}
}
