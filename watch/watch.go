// Package watch triggers debounced index rebuilds when documents under a
// root change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"procdocs/config"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 2 * time.Second

// Watcher observes Root recursively and calls OnChange once events have
// been quiet for Debounce.
type Watcher struct {
	Root     string
	Debounce time.Duration
	Ignore   []string // absolute paths never treated as changes (artifact, temp, lock)
	OnChange func(ctx context.Context) error
	Log      *logrus.Entry
}

// Run blocks until ctx is done. OnChange errors are logged, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Log == nil {
		w.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.Root); err != nil {
		return err
	}
	w.Log.WithField("root", w.Root).Info("watching for changes")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := w.addTree(fw, event.Name); err != nil {
					w.Log.WithError(err).Warn("watching new directory")
				}
				continue
			}
			if !w.Relevant(event) {
				continue
			}
			w.Log.WithFields(logrus.Fields{"path": event.Name, "op": event.Op.String()}).Debug("change detected")
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Log.WithError(err).Warn("watcher error")

		case <-timer.C:
			pending = false
			if w.OnChange == nil {
				continue
			}
			if err := w.OnChange(ctx); err != nil {
				w.Log.WithError(err).Error("rebuild after change failed")
			}
		}
	}
}

// Relevant reports whether event should schedule a rebuild: a supported
// document was created, written, removed or renamed.
func (w *Watcher) Relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	for _, p := range w.Ignore {
		if name == filepath.Clean(p) {
			return false
		}
	}
	base := filepath.Base(name)
	if config.IsHiddenFile(base) || config.IsLockFile(base) {
		return false
	}
	return config.IsSupported(base)
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && config.ShouldSkipDirectory(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
