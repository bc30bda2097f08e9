// Package extract turns document files into plain text. Every extractor
// degrades to an empty string or a diagnostic placeholder instead of failing.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"procdocs/config"
)

// Extractor defines the interface for extracting text from a document file
type Extractor interface {
	// ExtractText returns best-effort plain text; it never panics
	ExtractText(path string) string
}

// Options tunes extractor behaviour. Zero values fall back to defaults.
type Options struct {
	PDFTimeBudget        time.Duration
	PDFPageCap           int
	PDFPasswords         []string
	TextLayerSamplePages int
	TextLayerMinChars    int
	OCRLang              string
	OCRMaxPages          int
}

// OptionsFromConfig maps the [extract] configuration section to Options.
func OptionsFromConfig(c config.ExtractConfig) Options {
	return Options{
		PDFTimeBudget:        c.PDFTimeBudget.Duration,
		PDFPageCap:           c.PDFPageCap,
		PDFPasswords:         c.PDFPasswords,
		TextLayerSamplePages: c.TextLayerSamplePages,
		TextLayerMinChars:    c.TextLayerMinChars,
		OCRLang:              c.OCRLang,
		OCRMaxPages:          c.OCRMaxPages,
	}
}

func (o Options) withDefaults() Options {
	if o.PDFTimeBudget <= 0 {
		o.PDFTimeBudget = 8 * time.Second
	}
	if o.PDFPageCap <= 0 {
		o.PDFPageCap = 200
	}
	if o.TextLayerSamplePages <= 0 {
		o.TextLayerSamplePages = 3
	}
	if o.TextLayerMinChars <= 0 {
		o.TextLayerMinChars = 50
	}
	if o.OCRLang == "" {
		o.OCRLang = "rus+eng"
	}
	if o.OCRMaxPages <= 0 {
		o.OCRMaxPages = 10
	}
	return o
}

// Registry holds extractors for different file types
type Registry struct {
	extractors map[string]Extractor
	caps       Capabilities
}

// NewRegistry creates a registry with the built-in extractors wired to the
// given capabilities. ocr may be nil.
func NewRegistry(opts Options, caps Capabilities, runner CommandRunner, ocr OCRSource, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	opts = opts.withDefaults()

	txt := &TextExtractor{}
	eml := &EMLExtractor{}
	pdf := NewPDFExtractor(opts, caps, runner, log.WithField("format", "pdf"))
	if caps.OCR && ocr != nil {
		pdf.OCR = ocr
	}

	return &Registry{
		caps: caps,
		extractors: map[string]Extractor{
			"txt":  txt,
			"csv":  txt,
			"md":   txt,
			"log":  txt,
			"html": &HTMLExtractor{},
			"htm":  &HTMLExtractor{},
			"eml":  eml,
			"mbox": &MBOXExtractor{eml: eml},
			"docx": &DOCXExtractor{},
			"doc":  &DOCExtractor{},
			"xlsx": &XLSXExtractor{},
			"xls":  &XLSExtractor{Enabled: caps.LegacyXLS},
			"pdf":  pdf,
		},
	}
}

// Get returns the extractor for a format tag or file extension
func (r *Registry) Get(ext string) (Extractor, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	e, ok := r.extractors[ext]
	return e, ok
}

// Capabilities returns the capabilities the registry was built with
func (r *Registry) Capabilities() Capabilities {
	return r.caps
}

// Extract dispatches path to the extractor for its extension. ok is false
// when no extractor handles the format.
func (r *Registry) Extract(path string) (text string, ok bool) {
	e, ok := r.Get(config.FormatTag(path))
	if !ok {
		return "", false
	}
	return e.ExtractText(path), true
}

const diagnosticPrefix = "[Ошибка извлечения "

// Diagnostic builds the placeholder body used when extraction fails
func Diagnostic(format string, err error) string {
	return fmt.Sprintf("%s%s: %v]", diagnosticPrefix, strings.ToUpper(format), err)
}

// MsgXLSUnsupported is returned for .xls files when the legacy reader is off
const MsgXLSUnsupported = "[Формат XLS не поддерживается]"

// IsDiagnostic reports whether text is a failure placeholder rather than content
func IsDiagnostic(text string) bool {
	return strings.HasPrefix(text, diagnosticPrefix) || text == MsgXLSUnsupported
}
