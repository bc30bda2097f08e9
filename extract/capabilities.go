package extract

import (
	"os/exec"

	"procdocs/config"
)

// Capabilities records which optional extraction backends are usable in this
// process. It is resolved once at startup and passed to the extractors.
type Capabilities struct {
	PDFToText bool // poppler pdftotext on PATH
	OCR       bool // pdftoppm and tesseract on PATH, and enabled in config
	LegacyXLS bool // legacy .xls reader enabled
}

// LookPathFunc resolves an executable name, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Probe resolves capabilities from configuration and the executables found
// on PATH. A nil lookPath uses exec.LookPath.
func Probe(cfg config.ExtractConfig, lookPath LookPathFunc) Capabilities {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	has := func(name string) bool {
		_, err := lookPath(name)
		return err == nil
	}

	return Capabilities{
		PDFToText: has("pdftotext"),
		OCR:       cfg.OCR && has("pdftoppm") && has("tesseract"),
		LegacyXLS: cfg.LegacyXLS,
	}
}
