package source

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher notifies of new or modified image files written into a
// single directory. It combines real fsnotify events with a periodic
// rescan so a missed event (the folder already had a full listing by the
// time the watcher started, or fsnotify dropped an event under load)
// cannot wedge the source permanently.
type dirWatcher struct {
	fsw     *fsnotify.Watcher
	updates chan string
	done    chan struct{}
}

func startDirWatcher(root string) (*dirWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	dw := &dirWatcher{
		fsw:     fsw,
		updates: make(chan string, 1),
		done:    make(chan struct{}),
	}
	go dw.watch(root)
	return dw, nil
}

func (dw *dirWatcher) watch(root string) {
	defer close(dw.updates)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-dw.done:
			return
		case <-ticker.C:
			if path, ok := newestFile(root); ok {
				dw.notify(path)
			}
		case event, ok := <-dw.fsw.Events:
			if !ok {
				return
			}
			if (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && isImageFile(event.Name) {
				dw.notify(event.Name)
			}
		case _, ok := <-dw.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// notify is non-blocking: a pending, not-yet-consumed update is replaced
// by the newer path rather than stalling the watcher goroutine.
func (dw *dirWatcher) notify(path string) {
	select {
	case dw.updates <- path:
	default:
		select {
		case <-dw.updates:
		default:
		}
		select {
		case dw.updates <- path:
		default:
		}
	}
}

func (dw *dirWatcher) Close() error {
	close(dw.done)
	return dw.fsw.Close()
}

// newestFile returns the most recently modified image file directly
// inside root, ignoring subdirectories and dotfiles.
func newestFile(root string) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}
	var (
		newestPath string
		newestTime time.Time
		found      bool
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !isImageFile(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !found || info.ModTime().After(newestTime) {
			newestPath = filepath.Join(root, name)
			newestTime = info.ModTime()
			found = true
		}
	}
	return newestPath, found
}
