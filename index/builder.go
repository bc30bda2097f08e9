package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"procdocs/config"
	"procdocs/extract"
	"procdocs/normalize"
)

const (
	tmpSuffix        = ".tmp"
	lockSuffix       = ".lock"
	lockPollInterval = 100 * time.Millisecond
)

var (
	// ErrRootNotFound is returned when the document root is missing or not a directory.
	ErrRootNotFound = errors.New("document root not found")

	// ErrBuildLocked is returned when the artifact lock could not be taken before the context ended.
	ErrBuildLocked = errors.New("index build already in progress")
)

// ProgressFunc is an optional callback to report progress like: stage, processed, total, path
type ProgressFunc func(stage string, processed, total int, path string)

// Status is the outcome of indexing one file.
type Status string

const (
	StatusIndexed     Status = "indexed"
	StatusEmpty       Status = "empty"
	StatusError       Status = "error"
	StatusUnsupported Status = "unsupported"
)

// FileStatus records what happened to one file or archive member.
type FileStatus struct {
	Path   string // entry title
	Format string
	Tier   config.Tier
	Status Status
	Chars  int
	Error  string
}

// BuildResult summarizes one build.
type BuildResult struct {
	ID          string
	Root        string
	Artifact    string
	Entries     []Entry
	Files       []FileStatus
	Processed   int
	Indexed     int
	Empty       int
	Unsupported int
	Failed      int
	Unchanged   bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Builder walks a document folder and produces the index artifact.
type Builder struct {
	Registry   *extract.Registry
	Artifact   string // relative paths resolve against the root
	Grouped    bool
	OnProgress ProgressFunc
	Log        *logrus.Entry
}

// NewBuilder creates a builder writing to artifact.
func NewBuilder(reg *extract.Registry, artifact string, log *logrus.Entry) *Builder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Builder{Registry: reg, Artifact: artifact, Log: log}
}

// ArtifactPath resolves the artifact location for root.
func (b *Builder) ArtifactPath(root string) string {
	artifact := b.Artifact
	if artifact == "" {
		artifact = config.DefaultArtifactName
	}
	if filepath.IsAbs(artifact) {
		return artifact
	}
	return filepath.Join(root, artifact)
}

// Build indexes root and atomically replaces the artifact. When the new
// content equals the live artifact the file is left untouched.
func (b *Builder) Build(ctx context.Context, root string) (*BuildResult, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	artifact := b.ArtifactPath(root)

	unlock, err := acquireLock(ctx, artifact+lockSuffix)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := b.Collect(ctx, root)
	if err != nil {
		return nil, err
	}
	res.Artifact = artifact

	var buf bytes.Buffer
	if err := Render(&buf, res.Entries); err != nil {
		return nil, err
	}

	unchanged, err := writeAtomic(artifact, buf.Bytes())
	if err != nil {
		return nil, err
	}
	res.Unchanged = unchanged
	res.FinishedAt = time.Now()

	b.Log.WithFields(logrus.Fields{
		"artifact":    artifact,
		"entries":     len(res.Entries),
		"indexed":     res.Indexed,
		"empty":       res.Empty,
		"failed":      res.Failed,
		"unsupported": res.Unsupported,
		"unchanged":   unchanged,
		"elapsed":     res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond),
	}).Info("index build finished")

	return res, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	return nil
}

// Collect walks root and extracts every supported file without writing the
// artifact. Entries come back in artifact order.
func (b *Builder) Collect(ctx context.Context, root string) (*BuildResult, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{
		ID:        uuid.NewString(),
		Root:      absRoot,
		StartedAt: time.Now(),
	}

	files, err := NewFileWalker(b.ArtifactPath(root)).Walk(absRoot)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	var supported []WalkFile
	for _, f := range files {
		if config.IsSupported(f.Rel) {
			supported = append(supported, f)
			continue
		}
		res.Unsupported++
		res.Files = append(res.Files, FileStatus{Path: f.Rel, Format: config.FormatTag(f.Rel), Status: StatusUnsupported})
	}

	if b.Grouped {
		supported = orderByTier(supported)
	}

	total := len(supported)
	for i, f := range supported {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tier := config.TierOf(f.Rel)
		b.progress(string(tier), i, total, f.Rel)

		for _, e := range b.indexFile(f, res) {
			e.Group = groupName(b.Grouped, tier)
			res.Entries = append(res.Entries, e)
		}
		res.Processed++
	}
	b.progress("done", total, total, "")
	res.FinishedAt = time.Now()
	return res, nil
}

// indexFile extracts one file, expanding zip archives into member entries
func (b *Builder) indexFile(f WalkFile, res *BuildResult) []Entry {
	format := config.FormatTag(f.Rel)
	tier := config.TierOf(f.Rel)
	log := b.Log.WithField("path", f.Rel)

	switch format {
	case "zip":
		members, err := expandZip(b.Registry, f.Path, f.Rel)
		if err != nil {
			log.WithError(err).Warn("archive could not be opened")
			body := extract.Diagnostic(format, err)
			res.record(FileStatus{Path: f.Rel, Format: format, Tier: tier, Status: StatusError, Error: err.Error()})
			return []Entry{NewEntry(f.Rel, format, body, f.Size)}
		}
		entries := make([]Entry, 0, len(members))
		for _, m := range members {
			body := normalize.Text(m.Body)
			if m.Err != nil {
				body = extract.Diagnostic(m.Format, m.Err)
			}
			e := NewEntry(m.Title, m.Format, body, m.Size)
			res.record(statusFor(e, tier, m.Err))
			entries = append(entries, e)
		}
		return entries

	case "rar":
		res.record(FileStatus{Path: f.Rel, Format: format, Tier: tier, Status: StatusUnsupported})
		return []Entry{NewEntry(f.Rel, format, MsgRARUnsupported, f.Size)}
	}

	start := time.Now()
	raw, _ := b.Registry.Extract(f.Path)
	e := NewEntry(f.Rel, format, normalize.Text(raw), f.Size)
	st := statusFor(e, tier, nil)
	res.record(st)

	fields := logrus.Fields{"chars": e.CharCount, "elapsed": time.Since(start).Round(time.Millisecond)}
	if st.Status == StatusError {
		log.WithFields(fields).Warn("extraction failed")
	} else {
		log.WithFields(fields).Debug("extracted")
	}
	return []Entry{e}
}

func statusFor(e Entry, tier config.Tier, err error) FileStatus {
	st := FileStatus{Path: e.Title, Format: e.Format, Tier: tier, Chars: e.CharCount}
	switch {
	case err != nil:
		st.Status, st.Error = StatusError, err.Error()
	case e.Body == extract.MsgXLSUnsupported:
		st.Status, st.Error = StatusUnsupported, e.Body
	case extract.IsDiagnostic(e.Body):
		st.Status, st.Error = StatusError, e.Body
	case e.Body == "":
		st.Status = StatusEmpty
	default:
		st.Status = StatusIndexed
	}
	return st
}

func (r *BuildResult) record(st FileStatus) {
	r.Files = append(r.Files, st)
	switch st.Status {
	case StatusIndexed:
		r.Indexed++
	case StatusEmpty:
		r.Empty++
	case StatusError:
		r.Failed++
	case StatusUnsupported:
		r.Unsupported++
	}
}

func (b *Builder) progress(stage string, processed, total int, path string) {
	if b.OnProgress != nil {
		b.OnProgress(stage, processed, total, path)
	}
}

// orderByTier stably reorders files FAST, MEDIUM, SLOW
func orderByTier(files []WalkFile) []WalkFile {
	out := make([]WalkFile, 0, len(files))
	for _, tier := range config.Tiers {
		for _, f := range files {
			if config.TierOf(f.Rel) == tier {
				out = append(out, f)
			}
		}
	}
	return out
}

func groupName(grouped bool, tier config.Tier) string {
	if !grouped {
		return ""
	}
	return string(tier)
}

// Render writes entries in artifact format. Entries with a Group are wrapped
// in that tier's group markers.
func Render(out io.Writer, entries []Entry) error {
	w := NewWriter(out)
	open := ""
	for _, e := range entries {
		if e.Group != open {
			if open != "" {
				w.EndGroup(config.Tier(open))
			}
			if e.Group != "" {
				w.BeginGroup(config.Tier(e.Group))
			}
			open = e.Group
		}
		if err := w.WriteEntry(e); err != nil {
			return err
		}
	}
	if open != "" {
		w.EndGroup(config.Tier(open))
	}
	return w.Flush()
}

// writeAtomic replaces path with data via a synced temp file and rename.
// It reports unchanged=true and leaves the file alone when the bytes match.
func writeAtomic(path string, data []byte) (unchanged bool, err error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return true, nil
	}

	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return false, fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return false, fmt.Errorf("write temp artifact: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return false, fmt.Errorf("sync temp artifact: %w", err)
	}
	if err = f.Close(); err != nil {
		return false, err
	}
	if err = os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("replace artifact: %w", err)
	}

	if dir, derr := os.Open(filepath.Dir(path)); derr == nil {
		_ = dir.Sync()
		dir.Close()
	}
	return false, nil
}
