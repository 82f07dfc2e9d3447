package source

import (
	"context"
	"os"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
)

// fileSource decodes a single image once and loops it forever, rotating
// the buffer by one scan line on every Read so consecutive frames differ
// (a stand-in for a live feed when the configured video_src is a plain
// image file rather than a directory or device). The rotation trick is
// the same one the teacher's fake camera source used to avoid producing
// an identical frame every tick.
type fileSource struct {
	path     string
	pix      []byte
	width    int
	height   int
	channels int
}

func newFileSource(path string) (*fileSource, error) {
	return &fileSource{path: path}, nil
}

func (s *fileSource) Name() string { return s.path }

func (s *fileSource) Open(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf, err := decodeToBuffer(f)
	if err != nil {
		return err
	}
	s.pix = buf.Pix
	s.width = buf.Width
	s.height = buf.Height
	s.channels = buf.Channels
	return nil
}

func (s *fileSource) Read(ctx context.Context) (frame.Buffer, error) {
	select {
	case <-ctx.Done():
		return frame.Buffer{}, ctx.Err()
	default:
	}

	pitch := s.width * s.channels
	if pitch <= 0 || pitch >= len(s.pix) {
		out := make([]byte, len(s.pix))
		copy(out, s.pix)
		return frame.Buffer{Pix: out, Height: s.height, Width: s.width, Channels: s.channels}, nil
	}

	line := make([]byte, pitch)
	copy(line, s.pix[:pitch])
	copy(s.pix, s.pix[pitch:])
	copy(s.pix[len(s.pix)-pitch:], line)

	out := make([]byte, len(s.pix))
	copy(out, s.pix)
	return frame.Buffer{Pix: out, Height: s.height, Width: s.width, Channels: s.channels}, nil
}

func (s *fileSource) Close() error {
	s.pix = nil
	return nil
}
