package repository

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"beacon/internal/logging"
)

// selfMutationWindow is how long after one of our own writes a filesystem
// event on the same path is attributed to us rather than an external editor.
const selfMutationWindow = 2 * time.Second

// ExternalWatcher absorbs edits made to the tree behind the daemon's back
// (an operator editing files directly) so the index and watch subscribers
// stay consistent with the on-disk truth.
type ExternalWatcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
}

// WatchExternal starts watching the store's root recursively.
func WatchExternal(store *Store, logger *slog.Logger) (*ExternalWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ew := &ExternalWatcher{
		store:   store,
		watcher: watcher,
		logger:  logging.NewComponentLogger(logger, "repository"),
		done:    make(chan struct{}),
	}
	if err := ew.addRecursive(store.Root()); err != nil {
		watcher.Close()
		return nil, err
	}
	go ew.loop()
	return ew, nil
}

// Close stops the watcher.
func (ew *ExternalWatcher) Close() error {
	close(ew.done)
	return ew.watcher.Close()
}

func (ew *ExternalWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(walked string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if walked != dir && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		return ew.watcher.Add(walked)
	})
}

func (ew *ExternalWatcher) loop() {
	for {
		select {
		case <-ew.done:
			return
		case event, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			ew.handle(event)
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.logger.Warn("filesystem watcher error", logging.Error(err))
		}
	}
}

func (ew *ExternalWatcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(ew.store.Root(), event.Name)
	if err != nil {
		return
	}
	clean := filepath.ToSlash(rel)
	if hiddenPath(clean) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			// New directory: watch it, its files will fire their own events.
			_ = ew.addRecursive(event.Name)
			return
		}
		if ew.store.recentlyMutated(clean, selfMutationWindow) {
			return
		}
		ew.store.absorbExternal(clean, false)
	case event.Op.Has(fsnotify.Write):
		if ew.store.recentlyMutated(clean, selfMutationWindow) {
			return
		}
		ew.store.absorbExternal(clean, false)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if ew.store.recentlyMutated(clean, selfMutationWindow) {
			return
		}
		ew.store.absorbExternal(clean, true)
	}
}

func hiddenPath(clean string) bool {
	for _, segment := range strings.Split(clean, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
