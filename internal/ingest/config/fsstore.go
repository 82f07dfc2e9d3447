package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

// rescanInterval is the periodic fallback scan period, guarding against a
// missed fsnotify event the same way the source package's directory
// watcher does for frame files.
const rescanInterval = 5 * time.Minute

// FSStore is a Store backed by a directory tree: each key maps to a file
// path (leading "/" stripped, "/" elsewhere mapped to the OS separator),
// and WatchPrefix watches the corresponding subtree with fsnotify plus a
// periodic rescan fallback.
type FSStore struct {
	root   string
	logger servicelog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFSStore opens a store rooted at root, which must already exist.
func NewFSStore(root string, logger servicelog.Logger) (*FSStore, error) {
	stat, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("config: stat root %q: %w", root, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("config: root %q is not a directory", root)
	}
	return &FSStore{root: root, logger: logger}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

func (s *FSStore) keyOf(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}
	return "/" + filepath.ToSlash(rel)
}

// Get reads the file backing key.
func (s *FSStore) Get(key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WatchPrefix watches the subtree rooted at prefix. It returns once the
// initial watch is established; delivery happens on a background
// goroutine until Close is called.
func (s *FSStore) WatchPrefix(prefix string, cb func(key, value string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	base := s.path(prefix)
	if err := addTree(watcher, base); err != nil {
		watcher.Close()
		return err
	}

	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.dispatch(watcher, base, stopCh, doneCh, cb)
	return nil
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// dispatch owns seen, a last-published-value cache, so neither a
// duplicate fsnotify event nor the periodic rescan re-fires cb for a file
// whose content hasn't actually changed.
func (s *FSStore) dispatch(watcher *fsnotify.Watcher, base string, stopCh, doneCh chan struct{}, cb func(key, value string)) {
	defer close(doneCh)
	defer watcher.Close()

	seen := make(map[string]string)
	s.rescan(base, seen, nil) // seed seen without firing cb for pre-existing files

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(watcher, ev, seen, cb)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config: watcher error", servicelog.Error(err))
		case <-ticker.C:
			s.rescan(base, seen, cb)
		}
	}
}

func (s *FSStore) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event, seen map[string]string, cb func(key, value string)) {
	if ev.Has(fsnotify.Create) {
		if stat, err := os.Stat(ev.Name); err == nil && stat.IsDir() {
			if err := addTree(watcher, ev.Name); err != nil {
				s.logger.Warn("config: failed to watch new subdirectory", servicelog.String("path", ev.Name), servicelog.Error(err))
			}
			return
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	s.publishIfChanged(ev.Name, seen, cb)
}

func (s *FSStore) rescan(base string, seen map[string]string, cb func(key, value string)) {
	_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		s.publishIfChanged(path, seen, cb)
		return nil
	})
}

// publishIfChanged updates seen and, if cb is non-nil and the value
// actually changed, invokes it. cb is nil only during the initial seeding
// scan, which must populate seen without notifying the caller of files
// that existed before the watch started.
func (s *FSStore) publishIfChanged(path string, seen map[string]string, cb func(key, value string)) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("config: failed to read changed file", servicelog.String("path", path), servicelog.Error(err))
		return
	}
	value := string(data)
	key := s.keyOf(path)
	if prev, ok := seen[key]; ok && prev == value {
		return
	}
	seen[key] = value
	if cb != nil {
		cb(key, value)
	}
}

// Close stops the watcher goroutine. Idempotent.
func (s *FSStore) Close() error {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()
	if stopCh == nil {
		return nil
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-doneCh
	return nil
}
