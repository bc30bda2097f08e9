package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/text/encoding/charmap"
)

// perPageCap bounds the literal text taken from one content stream
const perPageCap = 128 * 1024

// contentStreamStrategy dumps page content streams with pdfcpu and collects
// the string literals drawn by text operators.
type contentStreamStrategy struct {
	pageCap int
}

func (s *contentStreamStrategy) Name() string { return "pdfcpu-streams" }

func (s *contentStreamStrategy) Attempt(ctx context.Context, path string, budget *Budget) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	tmpDir, err := os.MkdirTemp("", "procdocs_pdfcpu_*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	selected := []string{fmt.Sprintf("1-%d", s.pageCap)}
	if err := api.ExtractContentFile(path, tmpDir, selected, nil); err != nil {
		return "", fmt.Errorf("pdfcpu ExtractContentFile: %w", err)
	}

	ents, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", fmt.Errorf("read dir: %w", err)
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name() < ents[j].Name() })

	var b strings.Builder
	pages := 0
	for _, de := range ents {
		if de.IsDir() {
			continue
		}
		if pages >= s.pageCap || budget.Exhausted() || ctx.Err() != nil {
			break
		}
		data, _ := os.ReadFile(filepath.Join(tmpDir, de.Name()))
		if len(data) == 0 {
			continue
		}

		txt := printableOnly(decodeLiteral(parseStringLiterals(data, perPageCap)))
		pages++
		if txt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(txt)
	}

	return b.String(), nil
}

// parseStringLiterals collects bytes inside balanced parentheses of a PDF
// content stream, honoring backslash and octal escapes, up to maxOut bytes.
func parseStringLiterals(s []byte, maxOut int) []byte {
	out := make([]byte, 0, 1024)
	depth := 0
	in := false
	for i := 0; i < len(s) && len(out) < maxOut; i++ {
		c := s[i]
		if !in {
			if c == '(' {
				in = true
				depth = 1
			}
			continue
		}
		switch c {
		case '\\':
			if i+1 >= len(s) {
				continue
			}
			i++
			switch e := s[i]; {
			case e == 'n', e == 'r', e == 't':
				out = append(out, ' ')
			case e >= '0' && e <= '7':
				v := int(e - '0')
				for k := 0; k < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; k++ {
					i++
					v = v*8 + int(s[i]-'0')
				}
				out = append(out, byte(v))
			case e == '\n' || e == '\r':
				// line continuation
			default:
				out = append(out, e)
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				in = false
				out = append(out, ' ')
			} else {
				out = append(out, c)
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// decodeLiteral keeps valid UTF-8 and reads anything else as Windows-1251,
// the usual single-byte encoding of Russian documents.
func decodeLiteral(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	s, err := charmap.Windows1251.NewDecoder().String(string(raw))
	if err != nil {
		return string(raw)
	}
	return s
}

// printableOnly replaces non-printable runes with spaces and collapses whitespace
func printableOnly(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || !unicode.IsPrint(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
