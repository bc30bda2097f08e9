package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// cellSeparator joins table cells and spreadsheet cells within one row
const cellSeparator = " | "

// DOCXExtractor extracts text from .docx files (Office Open XML)
type DOCXExtractor struct{}

// ExtractText implements the Extractor interface for DOCX files
func (e *DOCXExtractor) ExtractText(path string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = Diagnostic("DOCX", fmt.Errorf("panic: %v", r))
		}
	}()

	zr, err := zip.OpenReader(path)
	if err != nil {
		return Diagnostic("DOCX", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Diagnostic("DOCX", err)
		}
		defer rc.Close()

		text, err := parseDocumentXML(rc)
		if err != nil {
			return Diagnostic("DOCX", err)
		}
		return text
	}
	return Diagnostic("DOCX", errors.New("word/document.xml not found"))
}

// parseDocumentXML streams WordprocessingML and returns paragraphs on their
// own lines; table rows become one line with cells joined by " | ".
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		lines  []string
		para   strings.Builder
		cells  []*strings.Builder // open table cells, innermost last
		row    []string
		inText bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte(' ')
			case "tr":
				if len(cells) == 0 {
					row = row[:0]
				}
			case "tc":
				cells = append(cells, &strings.Builder{})
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				p := strings.TrimSpace(para.String())
				para.Reset()
				if p == "" {
					continue
				}
				if n := len(cells); n > 0 {
					appendSpaced(cells[n-1], p)
				} else {
					lines = append(lines, p)
				}
			case "tc":
				n := len(cells)
				if n == 0 {
					continue
				}
				c := strings.TrimSpace(cells[n-1].String())
				cells = cells[:n-1]
				switch {
				case c == "":
				case len(cells) > 0:
					appendSpaced(cells[len(cells)-1], c)
				default:
					row = append(row, c)
				}
			case "tr":
				if len(cells) == 0 && len(row) > 0 {
					lines = append(lines, strings.Join(row, cellSeparator))
					row = row[:0]
				}
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

func appendSpaced(b *strings.Builder, s string) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(s)
}
