package repository

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"beacon/internal/fileutil"
	"beacon/internal/logging"
)

// Node is one entry in a tree listing.
type Node struct {
	Path    string
	Version int64
}

// Store serves the versioned document tree rooted at a directory.
type Store struct {
	root   string
	logger *slog.Logger

	mu       sync.RWMutex
	versions map[string]int64
	// selfMutations records paths this process just changed, so the
	// external-edit watcher can tell its own writes from foreign ones.
	selfMutations map[string]time.Time

	hub *hub
}

// Open scans root recursively and builds the index. Hidden files and
// directories (leading dot) are ignored.
func Open(root string, logger *slog.Logger) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", root)
	}

	s := &Store{
		root:          root,
		logger:        logging.NewComponentLogger(logger, "repository"),
		versions:      make(map[string]int64),
		selfMutations: make(map[string]time.Time),
		hub:           newHub(),
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	s.logger.Info("tree indexed", logging.String("root", root), logging.Int("documents", len(s.versions)))
	return s, nil
}

func (s *Store) scan() error {
	return filepath.WalkDir(s.root, func(walked string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if walked != s.root && strings.HasPrefix(name, ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, walked)
		if err != nil {
			return err
		}
		s.versions[filepath.ToSlash(rel)] = 1
		return nil
	})
}

// Root returns the directory backing the tree.
func (s *Store) Root() string { return s.root }

// Close shuts down watch delivery.
func (s *Store) Close() { s.hub.close() }

// CleanPath validates and canonicalizes a document path.
func CleanPath(raw string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}
	return cleaned, nil
}

func (s *Store) diskPath(clean string) string {
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

// List returns every document under prefix, sorted by path. An empty prefix
// lists the whole tree.
func (s *Store) List(prefix string) []Node {
	prefix = normalizePrefix(prefix)

	s.mu.RLock()
	nodes := make([]Node, 0, len(s.versions))
	for p, version := range s.versions {
		if prefix != "" && p != prefix && !strings.HasPrefix(p, prefix+"/") {
			continue
		}
		nodes = append(nodes, Node{Path: p, Version: version})
	}
	s.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes
}

// Read returns the content and version of one document.
func (s *Store) Read(rawPath string) ([]byte, int64, error) {
	clean, err := CleanPath(rawPath)
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	version, ok := s.versions[clean]
	if !ok {
		s.mu.RUnlock()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	content, readErr := os.ReadFile(s.diskPath(clean))
	s.mu.RUnlock()

	if readErr != nil {
		return nil, 0, fmt.Errorf("read %s: %w", clean, readErr)
	}
	return content, version, nil
}

// Write stores content at path when expectedVersion matches the stored
// version. A zero expectedVersion requires the document to not exist yet.
// The assigned version is returned; notification fan-out happens after the
// write lock is released.
func (s *Store) Write(rawPath string, content []byte, expectedVersion int64) (int64, error) {
	clean, err := CleanPath(rawPath)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	current, exists := s.versions[clean]
	if exists && current != expectedVersion {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s has version %d, caller expected %d", ErrConflict, clean, current, expectedVersion)
	}
	if !exists && expectedVersion != 0 {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s does not exist, caller expected version %d", ErrConflict, clean, expectedVersion)
	}

	if err := fileutil.WriteFileAtomic(s.diskPath(clean), content, 0o644); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("persist %s: %w", clean, err)
	}

	next := current + 1
	s.versions[clean] = next
	s.selfMutations[clean] = time.Now()
	s.mu.Unlock()

	kind := Modified
	if !exists {
		kind = Created
	}
	s.hub.publish(Event{Path: clean, Version: next, Kind: kind})
	s.logger.Debug("document written",
		logging.String(logging.FieldPath, clean),
		logging.Int64("version", next),
		logging.String(logging.FieldEventType, string(kind)))
	return next, nil
}

// Delete removes a document subject to the optimistic version check, then
// prunes directories left empty.
func (s *Store) Delete(rawPath string, expectedVersion int64) error {
	clean, err := CleanPath(rawPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	current, exists := s.versions[clean]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if current != expectedVersion {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s has version %d, caller expected %d", ErrConflict, clean, current, expectedVersion)
	}

	disk := s.diskPath(clean)
	if err := os.Remove(disk); err != nil && !os.IsNotExist(err) {
		s.mu.Unlock()
		return fmt.Errorf("remove %s: %w", clean, err)
	}
	delete(s.versions, clean)
	s.selfMutations[clean] = time.Now()
	fileutil.PruneEmptyDirs(filepath.Dir(disk), s.root)
	s.mu.Unlock()

	s.hub.publish(Event{Path: clean, Version: current, Kind: Deleted})
	s.logger.Debug("document deleted", logging.String(logging.FieldPath, clean))
	return nil
}

// Watch subscribes to change events under prefix. Delivery is at-least-once
// to currently registered watches only.
func (s *Store) Watch(prefix string) *Watch {
	return s.hub.subscribe(prefix)
}

// Version returns the stored version of a document.
func (s *Store) Version(rawPath string) (int64, error) {
	clean, err := CleanPath(rawPath)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.versions[clean]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	return version, nil
}

// recentlyMutated reports whether this process touched path within window.
// The external watcher uses it to skip events caused by our own writes.
func (s *Store) recentlyMutated(clean string, window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	when, ok := s.selfMutations[clean]
	return ok && time.Since(when) < window
}

// absorbExternal updates the index for a mutation made behind our back and
// publishes the corresponding event.
func (s *Store) absorbExternal(clean string, removed bool) {
	s.mu.Lock()
	current, exists := s.versions[clean]
	var ev Event
	switch {
	case removed && exists:
		delete(s.versions, clean)
		ev = Event{Path: clean, Version: current, Kind: Deleted}
	case removed:
		s.mu.Unlock()
		return
	case exists:
		s.versions[clean] = current + 1
		ev = Event{Path: clean, Version: current + 1, Kind: Modified}
	default:
		s.versions[clean] = 1
		ev = Event{Path: clean, Version: 1, Kind: Created}
	}
	s.mu.Unlock()

	s.hub.publish(ev)
	s.logger.Info("external edit absorbed",
		logging.String(logging.FieldPath, clean),
		logging.String(logging.FieldEventType, string(ev.Kind)))
}
