package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

const (
	// minDOCHeuristicChars is the length below which the byte heuristic is
	// considered to have missed the text
	minDOCHeuristicChars = 50

	// minUTF16Run is the shortest UTF-16 run kept by the embedded-text scan
	minUTF16Run = 4
)

// DOCExtractor extracts text from legacy binary .doc files without a full
// Word binary parser.
type DOCExtractor struct{}

// ExtractText implements the Extractor interface for DOC files
func (e *DOCExtractor) ExtractText(path string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = Diagnostic("DOC", fmt.Errorf("panic: %v", r))
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return Diagnostic("DOC", err)
	}

	text = docByteHeuristic(data)
	if len([]rune(text)) >= minDOCHeuristicChars {
		return text
	}

	if embedded := embeddedText(data); len([]rune(embedded)) > len([]rune(text)) {
		return embedded
	}
	return text
}

// docByteHeuristic keeps printable ASCII, decodes high-byte runs as
// Windows-1251 and drops tokens that are too short or carry no letters.
func docByteHeuristic(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))

	var high []byte
	flushHigh := func() {
		if len(high) > 0 {
			b.WriteString(decodeCP1251(high))
			high = high[:0]
		}
	}

	for _, c := range data {
		switch {
		case c >= 0x80:
			high = append(high, c)
		case c >= 0x20 && c < 0x7f:
			flushHigh()
			b.WriteByte(c)
		default:
			flushHigh()
			b.WriteByte(' ')
		}
	}
	flushHigh()

	return meaningfulTokens(b.String())
}

// meaningfulTokens keeps whitespace-separated tokens longer than two runes
// that contain at least one letter.
func meaningfulTokens(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 && strings.IndexFunc(f, unicode.IsLetter) >= 0 {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// embeddedText scans the OLE streams of a compound file for UTF-16LE text
// runs. Files that are not compound documents are scanned as raw bytes.
func embeddedText(data []byte) string {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return scanUTF16LE(data)
	}

	var parts []string
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Size == 0 {
			continue
		}
		buf, rerr := io.ReadAll(entry)
		if rerr != nil || len(buf) == 0 {
			continue
		}
		if t := scanUTF16LE(buf); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// scanUTF16LE collects runs of printable UTF-16LE code units
func scanUTF16LE(data []byte) string {
	var (
		runs []string
		run  []uint16
	)
	flush := func() {
		if len(run) >= minUTF16Run {
			if t := strings.TrimSpace(string(utf16.Decode(run))); t != "" {
				runs = append(runs, t)
			}
		}
		run = run[:0]
	}

	for i := 0; i+1 < len(data); i += 2 {
		u := uint16(data[i]) | uint16(data[i+1])<<8
		if isTextCodeUnit(u) {
			run = append(run, u)
			continue
		}
		flush()
	}
	flush()

	return meaningfulTokens(strings.Join(runs, " "))
}

func isTextCodeUnit(u uint16) bool {
	r := rune(u)
	switch {
	case r == '\t' || r == '\r' || r == '\n':
		return true
	case r >= 0x20 && r < 0x7f:
		return true
	case r >= 0x0400 && r <= 0x04ff: // Cyrillic
		return true
	case r == 0x00a0 || r == 0x00ab || r == 0x00bb || r == 0x2116: // nbsp, guillemets, numero
		return true
	case r >= 0x2010 && r <= 0x201e: // dashes and quotes
		return true
	}
	return false
}
