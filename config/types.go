package config

import (
	"path/filepath"
	"slices"
	"strings"
)

// DocumentTypes defines the file extensions the indexer extracts text from
var DocumentTypes = []string{
	"txt", "csv", "md", "log", "html", "htm",
	"eml", "mbox",
	"pdf", "doc", "docx", "xls", "xlsx",
}

// ContainerTypes defines archive extensions whose members are indexed as virtual entries
var ContainerTypes = []string{"zip", "rar"}

// Tier is the expected extraction cost class of a file format
type Tier string

const (
	TierFast   Tier = "FAST"
	TierMedium Tier = "MEDIUM"
	TierSlow   Tier = "SLOW"
)

// Tiers lists speed tiers in the order grouped artifacts emit them
var Tiers = []Tier{TierFast, TierMedium, TierSlow}

var tierByExt = map[string]Tier{
	"txt": TierFast, "csv": TierFast, "md": TierFast, "log": TierFast,
	"html": TierFast, "htm": TierFast,
	"docx": TierMedium, "doc": TierMedium, "xlsx": TierMedium, "xls": TierMedium,
	"eml": TierMedium, "mbox": TierMedium,
	"pdf": TierSlow, "zip": TierSlow, "rar": TierSlow,
}

// TierOf classifies a file name into a speed tier; unknown formats are slow
func TierOf(filename string) Tier {
	if t, ok := tierByExt[FormatTag(filename)]; ok {
		return t
	}
	return TierSlow
}

// FormatTag returns the lower-case extension without the dot ("pdf", "docx", ...)
func FormatTag(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// IsDocumentFile checks if a file extension is an extractable document type
func IsDocumentFile(filename string) bool {
	return slices.Contains(DocumentTypes, FormatTag(filename))
}

// IsContainerFile checks if a file extension is an archive type
func IsContainerFile(filename string) bool {
	return slices.Contains(ContainerTypes, FormatTag(filename))
}

// IsSupported reports whether the indexer handles the file at all
func IsSupported(filename string) bool {
	return IsDocumentFile(filename) || IsContainerFile(filename)
}

// IsLockFile detects transient office-suite lock files (~$report.docx, .~lock.report.odt#)
func IsLockFile(filename string) bool {
	base := filepath.Base(filename)
	return strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".~lock.")
}

// IsHiddenFile checks if a file should be treated as hidden
func IsHiddenFile(filename string) bool {
	return strings.HasPrefix(filepath.Base(filename), ".")
}

// ShouldSkipDirectory determines if a directory should be skipped during traversal
func ShouldSkipDirectory(dirName string) bool {
	skipDirs := map[string]bool{
		".git":        true,
		".svn":        true,
		".hg":         true,
		"__pycache__": true,
		"__MACOSX":    true,
		".DS_Store":   true,
	}

	return skipDirs[dirName] || strings.HasPrefix(dirName, ".")
}

// GetFileTypeDescription returns a human-readable description of indexed file types
func GetFileTypeDescription() string {
	return "documents (" + strings.Join(DocumentTypes, ", ") + ") + archives (" + strings.Join(ContainerTypes, ", ") + ")"
}
