package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// OCRSource recognizes text in scanned documents.
type OCRSource interface {
	Extract(ctx context.Context, path string, maxPages int, lang string) (string, error)
}

// CommandOCR rasterizes pages with pdftoppm and recognizes them with tesseract.
type CommandOCR struct {
	Runner CommandRunner
	DPI    int
}

// NewCommandOCR returns a CommandOCR using runner, or os/exec when nil.
func NewCommandOCR(runner CommandRunner) *CommandOCR {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CommandOCR{Runner: runner, DPI: 300}
}

// Extract renders up to maxPages pages to PNG and concatenates the
// recognized text of each page in page order.
func (o *CommandOCR) Extract(ctx context.Context, path string, maxPages int, lang string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "procdocs_ocr_*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	if _, err := o.Runner.Run(ctx, "pdftoppm",
		"-r", strconv.Itoa(o.DPI), "-png",
		"-f", "1", "-l", strconv.Itoa(maxPages),
		path, prefix); err != nil {
		return "", fmt.Errorf("pdftoppm: %w", err)
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", err
	}
	sort.Strings(images)

	var b strings.Builder
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		out, err := o.Runner.Run(ctx, "tesseract", img, "stdout", "-l", lang)
		if err != nil {
			return b.String(), fmt.Errorf("tesseract %s: %w", filepath.Base(img), err)
		}
		b.Write(out)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

var _ OCRSource = (*CommandOCR)(nil)
