package source

import (
	"context"
	"os"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
)

// dirSource treats a directory of frame image files as a video feed: each
// new file written into the folder becomes the next frame. Frames are
// delivered in arrival order, not filename order, since the folder is
// expected to be an append-only drop point for an external process. Only
// one unread path is held: a file that arrives before the previous one was
// read replaces it, so the earlier file is never delivered.
type dirSource struct {
	root    string
	watcher *dirWatcher
}

func newDirSource(root string) *dirSource {
	return &dirSource{root: root}
}

func (d *dirSource) Name() string { return d.root }

func (d *dirSource) Open(ctx context.Context) error {
	w, err := startDirWatcher(d.root)
	if err != nil {
		return err
	}
	d.watcher = w
	// Seed with the newest image file already in the folder so the first
	// Read doesn't wait for a fresh write event; older files are skipped.
	if path, ok := newestFile(d.root); ok {
		d.watcher.notify(path)
	}
	return nil
}

// Read reports ErrNoFrame when no new file has arrived since the last
// call. This is deliberate: per the read loop contract, a source that
// goes quiet for MAX_FAIL consecutive reads is indistinguishable from (and
// treated the same as) one that is failing.
func (d *dirSource) Read(ctx context.Context) (frame.Buffer, error) {
	select {
	case path, ok := <-d.watcher.updates:
		if !ok {
			return frame.Buffer{}, ErrEndOfStream
		}
		f, err := os.Open(path)
		if err != nil {
			return frame.Buffer{}, ErrNoFrame
		}
		defer f.Close()
		buf, err := decodeToBuffer(f)
		if err != nil {
			return frame.Buffer{}, ErrNoFrame
		}
		return buf, nil
	case <-ctx.Done():
		return frame.Buffer{}, ctx.Err()
	default:
		return frame.Buffer{}, ErrNoFrame
	}
}

func (d *dirSource) Close() error {
	if d.watcher == nil {
		return nil
	}
	return d.watcher.Close()
}
