package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/jhillyerd/enmime"
)

// EMLExtractor extracts text from .eml files (MIME messages)
type EMLExtractor struct{}

// ExtractText implements the Extractor interface for EML files
func (e *EMLExtractor) ExtractText(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return Diagnostic("EML", err)
	}
	defer f.Close()

	text, err := e.extractMessage(f)
	if err != nil {
		return Diagnostic("EML", err)
	}
	return text
}

// extractMessage renders subject, sender and body of one MIME message.
// Plain text is preferred; HTML bodies are reduced to text.
func (e *EMLExtractor) extractMessage(r io.Reader) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse EML: %w", err)
	}

	var b strings.Builder
	if subject := env.GetHeader("Subject"); subject != "" {
		b.WriteString("Тема: " + subject + "\n")
	}
	if from := env.GetHeader("From"); from != "" {
		b.WriteString("От: " + from + "\n")
	}

	body := env.Text
	if strings.TrimSpace(body) == "" && env.HTML != "" {
		body = htmlToText(strings.NewReader(env.HTML))
	}
	b.WriteString(body)

	for _, a := range env.Attachments {
		b.WriteString("\nВложение: " + a.FileName)
	}
	return strings.TrimSpace(b.String()), nil
}

// MBOXExtractor extracts text from .mbox files (collections of MIME messages)
type MBOXExtractor struct {
	eml *EMLExtractor
}

// ExtractText implements the Extractor interface for MBOX files
func (e *MBOXExtractor) ExtractText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return Diagnostic("MBOX", err)
	}
	eml := e.eml
	if eml == nil {
		eml = &EMLExtractor{}
	}

	reader := mbox.NewReader(bytes.NewReader(data))
	var parts []string
	for {
		msg, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(parts) == 0 {
				return Diagnostic("MBOX", err)
			}
			break
		}
		text, err := eml.extractMessage(msg)
		if err != nil || text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n---\n")
}
