// Package source implements the Frame Source side of the Ingestor: opening
// a video_src descriptor and producing a sequence of raw frame.Buffer
// values. Two concrete sources are provided: a single-file source that
// loops a decoded image (a stand-in for a live camera feed, the same role
// played by the teacher's fake source), and a directory source that treats
// a folder of frame images as an append-only video feed.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
)

// ErrNoFrame signals a transient read miss: the source is open but has no
// frame ready yet (no new file in a directory source). It is
// not a failure on its own; the Ingestor's consecutive-failure counter
// treats repeated ErrNoFrame the same as repeated decode failures.
var ErrNoFrame = errors.New("source: no frame available")

// ErrEndOfStream signals the source has been exhausted. The Ingestor does
// not count it toward MAX_FAIL: with loop_video true it reopens the source,
// otherwise it terminates (recording ErrEndOfStream as its exit error when
// loop_video is absent).
var ErrEndOfStream = errors.New("source: end of stream")

// VideoSource is satisfied by every concrete source implementation. Open
// is called once per source lifetime; Read may be called many times
// between Open and Close and must not block indefinitely (the Ingestor
// passes context.Background(), so Read cannot rely on cancellation to
// return). Close releases any OS handles and
// must be safe to call after a failed Open.
type VideoSource interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (frame.Buffer, error)
	Close() error
	Name() string
}

// Descriptor mirrors the source descriptor of the data model, trimmed to
// the fields a VideoSource constructor needs.
type Descriptor struct {
	VideoSrc string
	Width    int
	Height   int
}

// Resolve maps video_src to a concrete VideoSource without opening it —
// callers still need to call Open on the result. video_src is an opaque
// string per the data model; this implementation recognizes two shapes: a
// directory (treated as a dirSource) and a regular file (treated as a
// fileSource, decoded once and looped). Any other shape (URL, device
// index) is out of scope for this reference implementation and returns an
// error, matching the spec's "opaque string" contract without inventing a
// transport this module cannot actually open.
func Resolve(desc Descriptor) (VideoSource, error) {
	info, err := os.Stat(desc.VideoSrc)
	if err != nil {
		return nil, fmt.Errorf("source: stat %s: %w", desc.VideoSrc, err)
	}
	if info.IsDir() {
		return newDirSource(desc.VideoSrc), nil
	}
	if isImageFile(desc.VideoSrc) {
		return newFileSource(desc.VideoSrc)
	}
	return nil, fmt.Errorf("source: unsupported video_src %q", desc.VideoSrc)
}

func isImageFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".jpg") ||
		strings.HasSuffix(lower, ".jpeg") ||
		strings.HasSuffix(lower, ".png")
}
