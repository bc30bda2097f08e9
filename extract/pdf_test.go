package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procdocs/config"
)

func configWith(ocr, legacyXLS bool) config.ExtractConfig {
	c := config.Default().Extract
	c.OCR = ocr
	c.LegacyXLS = legacyXLS
	return c
}

// minimalPDF builds a one-page PDF drawing text with a standard font
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

func TestPDFExtractorReadsTextLayer(t *testing.T) {
	p := writeFile(t, t.TempDir(), "notice.pdf", minimalPDF("Tender notice 2024"))
	e := NewPDFExtractor(Options{}, Capabilities{}, &mockRunner{}, nil)

	text, attempts := e.Extract(context.Background(), p)

	assert.Contains(t, text, "Tender")
	require.NotEmpty(t, attempts)
	assert.Equal(t, "ledongthuc-plain", attempts[0].Strategy)
	assert.True(t, attempts[len(attempts)-1].OK)
}

func TestPDFExtractorPDFToTextStrategy(t *testing.T) {
	p := writeFile(t, t.TempDir(), "scan.pdf", []byte("not a pdf"))
	runner := &mockRunner{output: []byte("Текст из pdftotext")}
	e := NewPDFExtractor(Options{PDFPageCap: 7}, Capabilities{PDFToText: true}, runner, nil)

	text, attempts := e.Extract(context.Background(), p)

	assert.Equal(t, "Текст из pdftotext", text)
	require.Len(t, attempts, 4)
	assert.Equal(t, "pdftotext", attempts[3].Strategy)
	for _, a := range attempts[:3] {
		assert.False(t, a.OK, a.Strategy)
	}
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "pdftotext", runner.calls[0][0])
	assert.Contains(t, strings.Join(runner.calls[0], " "), "-l 7")
}

type fakeOCR struct {
	text  string
	err   error
	pages int
	lang  string
}

func (f *fakeOCR) Extract(_ context.Context, _ string, maxPages int, lang string) (string, error) {
	f.pages, f.lang = maxPages, lang
	return f.text, f.err
}

func TestPDFExtractorFallsBackToOCR(t *testing.T) {
	p := writeFile(t, t.TempDir(), "scan.pdf", []byte("%PDF-1.4 garbage"))
	ocr := &fakeOCR{text: "распознанный текст"}
	e := NewPDFExtractor(Options{OCRMaxPages: 4}, Capabilities{}, &mockRunner{}, nil)
	e.OCR = ocr

	text, attempts := e.Extract(context.Background(), p)

	assert.Equal(t, "распознанный текст", text)
	assert.Equal(t, 4, ocr.pages)
	assert.Equal(t, "rus+eng", ocr.lang)
	assert.Equal(t, "ocr", attempts[len(attempts)-1].Strategy)
}

func TestPDFExtractorEmptyWithoutOCR(t *testing.T) {
	p := writeFile(t, t.TempDir(), "scan.pdf", []byte{})
	e := NewPDFExtractor(Options{PDFTimeBudget: time.Second}, Capabilities{}, &mockRunner{}, nil)
	assert.Equal(t, "", e.ExtractText(p))
}

func TestHasTextLayer(t *testing.T) {
	dir := t.TempDir()
	e := NewPDFExtractor(Options{TextLayerMinChars: 10}, Capabilities{}, &mockRunner{}, nil)

	vector := writeFile(t, dir, "vector.pdf", minimalPDF("Supply contract for office paper"))
	assert.True(t, e.HasTextLayer(vector))

	short := writeFile(t, dir, "short.pdf", minimalPDF("ab"))
	assert.False(t, e.HasTextLayer(short))

	assert.False(t, e.HasTextLayer(filepath.Join(dir, "missing.pdf")))
}

func TestParseStringLiterals(t *testing.T) {
	stream := []byte(`BT (Hello) Tj [(Wor) -20 (ld\051)] TJ (a\(b\)c) Tj (\101\102) Tj ET`)
	got := string(parseStringLiterals(stream, 1024))
	assert.Equal(t, "Hello Wor ld) a(b)c AB ", got)
}

func TestDecodeLiteral(t *testing.T) {
	assert.Equal(t, "plain", decodeLiteral([]byte("plain")))
	assert.Equal(t, "Цена", decodeLiteral([]byte{0xD6, 0xE5, 0xED, 0xE0}))
}

type ocrRunner struct {
	pages int
	calls []string
}

func (r *ocrRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, name)
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= r.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("png"), 0o644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "tesseract":
		return []byte("страница " + strings.TrimSuffix(filepath.Base(args[0]), ".png")), nil
	}
	return nil, errors.New("unexpected command")
}

func TestCommandOCR(t *testing.T) {
	runner := &ocrRunner{pages: 2}
	ocr := NewCommandOCR(runner)

	text, err := ocr.Extract(context.Background(), "scan.pdf", 2, "rus")

	require.NoError(t, err)
	assert.Equal(t, "страница page-1\nстраница page-2\n", text)
	assert.Equal(t, []string{"pdftoppm", "tesseract", "tesseract"}, runner.calls)
}

func TestCommandOCRRenderFailure(t *testing.T) {
	ocr := NewCommandOCR(&mockRunner{err: errors.New("exit status 1")})
	_, err := ocr.Extract(context.Background(), "scan.pdf", 1, "rus")
	assert.ErrorContains(t, err, "pdftoppm")
}
