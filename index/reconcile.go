package index

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// IssueKind classifies a reconciliation finding.
type IssueKind string

const (
	IssueEmpty    IssueKind = "empty"    // Символов: 0, extraction failed or found nothing
	IssueMissing  IssueKind = "missing"  // the title's file is gone from disk
	IssueMismatch IssueKind = "mismatch" // recorded char count differs from the body
)

// Issue is one entry flagged by Reconcile.
type Issue struct {
	Title  string
	Kind   IssueKind
	Detail string
}

// Reconcile checks parsed entries against root. Archive member titles
// (zip://, rar://) have no file of their own and are never looked up on disk.
func Reconcile(root string, entries []Entry) []Issue {
	var issues []Issue
	for _, e := range entries {
		if e.CharCount == 0 {
			issues = append(issues, Issue{Title: e.Title, Kind: IssueEmpty, Detail: e.Body})
		}
		if e.CharCount > 0 {
			if n := utf8.RuneCountInString(e.Body); n != e.CharCount {
				issues = append(issues, Issue{Title: e.Title, Kind: IssueMismatch, Detail: fmt.Sprintf("body has %d characters, header says %d", n, e.CharCount)})
			}
		}
		if e.Title == "" || isVirtualTitle(e.Title) {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(e.Title))); err != nil {
			issues = append(issues, Issue{Title: e.Title, Kind: IssueMissing, Detail: err.Error()})
		}
	}
	return issues
}
