package functions

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
)

const watchDebounce = 500 * time.Millisecond

var ignorePatterns = []string{
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/.git/**",
	"**/.*",
}

// Watcher observes the functions directory and triggers a reload when
// manifests or sources change. Events are debounced so one deploy (many
// file writes) produces one reload.
type Watcher struct {
	dir     string
	reload  func()
	ignored []glob.Glob
	logger  zerolog.Logger
}

// NewWatcher creates a watcher over dir that calls reload after changes
// settle.
func NewWatcher(dir string, reload func(), logger zerolog.Logger) *Watcher {
	ignored := make([]glob.Glob, 0, len(ignorePatterns))
	for _, p := range ignorePatterns {
		ignored = append(ignored, glob.MustCompile(p, '/'))
	}
	return &Watcher{
		dir:     dir,
		reload:  reload,
		ignored: ignored,
		logger:  logger.With().Str("component", "watcher").Logger(),
	}
}

// Run blocks watching for changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.dir); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.isIgnored(event.Name) {
				continue
			}
			// New subdirectories must be watched before their files land.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(fw, event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Info().Msg("functions changed, reloading")
			w.reload()
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.isIgnored(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) isIgnored(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, g := range w.ignored {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
