package source

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: byte(x), G: byte(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write test png: %v", err)
	}
}

func TestFileSourceRotatesScanLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.png")
	writeTestPNG(t, path, 4, 3)

	fs, err := newFileSource(path)
	if err != nil {
		t.Fatalf("newFileSource: %v", err)
	}
	ctx := context.Background()
	if err := fs.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	first, err := fs.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if first.Width != 4 || first.Height != 3 || first.Channels != 3 {
		t.Fatalf("unexpected shape: %+v", first)
	}

	second, err := fs.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if bytes.Equal(first.Pix, second.Pix) {
		t.Fatalf("expected successive reads to differ after scan line rotation")
	}

	// After Height reads the buffer has rotated all the way around.
	cur := second
	for i := 0; i < first.Height-1; i++ {
		cur, err = fs.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if !bytes.Equal(first.Pix, cur.Pix) {
		t.Fatalf("expected buffer to cycle back to the original after Height reads")
	}
}

func TestDirSourceReportsNoFrameUntilWrite(t *testing.T) {
	dir := t.TempDir()
	ds := newDirSource(dir)
	ctx := context.Background()
	if err := ds.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()

	if _, err := ds.Read(ctx); err != ErrNoFrame {
		t.Fatalf("expected ErrNoFrame on empty directory, got %v", err)
	}

	writeTestPNG(t, filepath.Join(dir, "0001.png"), 2, 2)

	deadline := time.After(2 * time.Second)
	for {
		buf, err := ds.Read(ctx)
		if err == nil {
			if buf.Width != 2 || buf.Height != 2 {
				t.Fatalf("unexpected shape: %+v", buf)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dirSource to observe new file")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestResolveRejectsUnsupportedVideoSrc(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Resolve(Descriptor{VideoSrc: path}); err == nil {
		t.Fatalf("expected error for unsupported video_src extension")
	}
}
