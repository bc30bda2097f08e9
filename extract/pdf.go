package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
)

// PDFExtractor extracts text from .pdf files through an ordered cascade of
// strategies bounded by a shared time budget and a page cap.
type PDFExtractor struct {
	Cascade *Cascade
	OCR     OCRSource // consulted only when every strategy came back empty

	opts Options
	log  *logrus.Entry
}

var disablePDFCPUConfig sync.Once

// NewPDFExtractor builds the standard cascade. The pdftotext strategy is
// included only when the capability was probed.
func NewPDFExtractor(opts Options, caps Capabilities, runner CommandRunner, log *logrus.Entry) *PDFExtractor {
	// pdfcpu would otherwise create a config dir under the user's home
	disablePDFCPUConfig.Do(api.DisableConfigDir)

	opts = opts.withDefaults()
	strategies := []Strategy{
		&plainTextStrategy{pageCap: opts.PDFPageCap},
		&pageContentStrategy{pageCap: opts.PDFPageCap, passwords: opts.PDFPasswords},
		&contentStreamStrategy{pageCap: opts.PDFPageCap},
	}
	if caps.PDFToText {
		strategies = append(strategies, &pdfToTextStrategy{runner: runner, pageCap: opts.PDFPageCap})
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PDFExtractor{
		Cascade: &Cascade{Strategies: strategies},
		opts:    opts,
		log:     log,
	}
}

// ExtractText implements the Extractor interface for PDF files
func (e *PDFExtractor) ExtractText(path string) string {
	text, attempts := e.Extract(context.Background(), path)
	for _, a := range attempts {
		e.log.WithField("path", path).Debug(a.String())
	}
	return text
}

// Extract runs the cascade and returns the text together with per-strategy
// diagnostics. An empty result means the file needs OCR or has no text.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, []Attempt) {
	budget := NewBudget(e.opts.PDFTimeBudget)
	text, attempts := e.Cascade.Run(ctx, path, budget)
	if text != "" || e.OCR == nil {
		return text, attempts
	}

	start := time.Now()
	ocrText, err := e.OCR.Extract(ctx, path, e.opts.OCRMaxPages, e.opts.OCRLang)
	ocrText = strings.TrimSpace(ocrText)
	attempts = append(attempts, Attempt{
		Strategy: "ocr",
		OK:       ocrText != "",
		Chars:    len([]rune(ocrText)),
		Elapsed:  time.Since(start),
		Err:      err,
	})
	return ocrText, attempts
}

// HasTextLayer samples the first pages and reports whether they carry at
// least the configured number of characters ("vector" vs "scanned").
func (e *PDFExtractor) HasTextLayer(path string) bool {
	var sampled int
	err := withPDFReader(path, nil, func(r *pdf.Reader) error {
		n := min(safeNumPage(r), e.opts.TextLayerSamplePages)
		for i := 1; i <= n; i++ {
			sampled += len([]rune(strings.TrimSpace(pageContentText(r, i))))
		}
		return nil
	})
	return err == nil && sampled >= e.opts.TextLayerMinChars
}

// PageCount returns the number of pages as reported by pdfcpu
func PageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	return api.PageCountFile(path)
}

// plainTextStrategy uses the layout-aware per-page text reconstruction of
// ledongthuc/pdf.
type plainTextStrategy struct {
	pageCap int
}

func (s *plainTextStrategy) Name() string { return "ledongthuc-plain" }

func (s *plainTextStrategy) Attempt(ctx context.Context, path string, budget *Budget) (string, error) {
	var b strings.Builder
	err := withPDFReader(path, nil, func(r *pdf.Reader) error {
		pages := min(safeNumPage(r), s.pageCap)
		for i := 1; i <= pages; i++ {
			if budget.Exhausted() || ctx.Err() != nil {
				break
			}
			b.WriteString(pagePlainText(r, i))
			b.WriteByte('\n')
		}
		return nil
	})
	return b.String(), err
}

// pageContentStrategy walks the raw text runs of each page and retries
// encrypted documents with the candidate passwords.
type pageContentStrategy struct {
	pageCap   int
	passwords []string
}

func (s *pageContentStrategy) Name() string { return "ledongthuc-pages" }

func (s *pageContentStrategy) Attempt(ctx context.Context, path string, budget *Budget) (string, error) {
	var b strings.Builder
	err := withPDFReader(path, s.passwords, func(r *pdf.Reader) error {
		pages := min(safeNumPage(r), s.pageCap)
		for i := 1; i <= pages; i++ {
			if budget.Exhausted() || ctx.Err() != nil {
				break
			}
			if t := pageContentText(r, i); t != "" {
				b.WriteString(t)
				b.WriteByte('\n')
			}
		}
		return nil
	})
	return b.String(), err
}

// pdfToTextStrategy shells out to poppler's renderer-backed extractor.
type pdfToTextStrategy struct {
	runner  CommandRunner
	pageCap int
}

func (s *pdfToTextStrategy) Name() string { return "pdftotext" }

func (s *pdfToTextStrategy) Attempt(ctx context.Context, path string, budget *Budget) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, budget.Remaining())
	defer cancel()

	out, err := s.runner.Run(ctx, "pdftotext",
		"-q", "-enc", "UTF-8", "-layout",
		"-f", "1", "-l", strconv.Itoa(s.pageCap),
		path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// withPDFReader opens path and hands a reader to fn. Encrypted documents are
// retried with the empty password followed by each candidate.
func withPDFReader(path string, passwords []string, fn func(*pdf.Reader) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if errors.Is(err, pdf.ErrInvalidPassword) && len(passwords) > 0 {
		next := 0
		reader, err = pdf.NewReaderEncrypted(f, stat.Size(), func() string {
			if next >= len(passwords) {
				return ""
			}
			pw := passwords[next]
			next++
			return pw
		})
	}
	if err != nil {
		return err
	}
	return fn(reader)
}

// Safely obtain number of pages (library may panic on malformed PDFs)
func safeNumPage(r *pdf.Reader) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	return r.NumPage()
}

func pagePlainText(r *pdf.Reader, i int) (text string) {
	defer func() { _ = recover() }()
	page := r.Page(i)
	if page.V.IsNull() {
		return ""
	}
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := page.Font(name)
			fonts[name] = &f
		}
	}
	text, _ = page.GetPlainText(fonts)
	return text
}

// pageContentText rebuilds page text from positioned glyph runs. A vertical
// jump starts a new line; a horizontal gap inserts a space.
func pageContentText(r *pdf.Reader, i int) (text string) {
	defer func() { _ = recover() }()
	page := r.Page(i)
	if page.V.IsNull() {
		return ""
	}

	var (
		b    strings.Builder
		prev *pdf.Text
	)
	for _, item := range page.Content().Text {
		if prev != nil {
			tol := max(prev.FontSize, 1)
			switch {
			case abs(item.Y-prev.Y) > tol/2:
				b.WriteByte('\n')
			case item.X-(prev.X+prev.W) > tol*0.15:
				b.WriteByte(' ')
			}
		}
		b.WriteString(item.S)
		prev = &item
	}
	return strings.TrimSpace(b.String())
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
