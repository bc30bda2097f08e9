package extract

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// fallbackEncodings are tried in order once UTF-8 fails
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"windows-1251", charmap.Windows1251},
	{"latin-1", charmap.ISO8859_1},
}

// TextExtractor reads plain text files (txt, csv, md, log)
type TextExtractor struct{}

// ExtractText implements the Extractor interface for plain text files
func (e *TextExtractor) ExtractText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return Diagnostic("TXT", err)
	}
	text, err := DecodeText(data)
	if err != nil {
		return Diagnostic("TXT", err)
	}
	return text
}

// DecodeText decodes bytes as UTF-8 (BOM stripped), then Windows-1251, then
// Latin-1. A decode that yields replacement characters counts as a failure.
func DecodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, fb := range fallbackEncodings {
		s, err := fb.enc.NewDecoder().Bytes(data)
		if err != nil || bytes.ContainsRune(s, utf8.RuneError) {
			continue
		}
		return string(s), nil
	}
	return "", fmt.Errorf("unknown text encoding")
}

// decodeCP1251 decodes a single-byte Cyrillic run, dropping undecodable bytes
func decodeCP1251(b []byte) string {
	s, err := charmap.Windows1251.NewDecoder().String(string(b))
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(s, string(utf8.RuneError), "")
}
