package extract

import (
	"context"
	"os/exec"
)

// CommandRunner executes external tools (pdftotext, pdftoppm, tesseract).
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns stdout.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var _ CommandRunner = ExecRunner{}
