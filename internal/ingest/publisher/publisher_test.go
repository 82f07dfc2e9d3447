package publisher

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"image"
	_ "image/jpeg"
	"testing"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/bus"
	"github.com/factoryedge/videoingest/internal/ingest/frame"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

func testBuffer(w, h int) frame.Buffer {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = byte(i % 256)
	}
	return frame.Buffer{Pix: pix, Width: w, Height: h, Channels: 3}
}

func mustReceive(t *testing.T, b *bus.ChannelBus, timeout time.Duration) bus.Message {
	t.Helper()
	select {
	case msg := <-b.Messages():
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for publish")
	}
	return bus.Message{}
}

func runOne(t *testing.T, rec frame.Record, profiling bool) (bus.Message, frame.Metadata) {
	t.Helper()
	in := queue.New(1)
	b := bus.NewChannelBus(1)
	p := New(in, "frames", b, servicelog.NewNop(), profiling)
	p.Start()
	defer func() {
		p.Stop()
		p.Join()
	}()
	in.Enqueue(context.Background(), rec)
	msg := mustReceive(t, b, 2*time.Second)
	var meta frame.Metadata
	if err := json.Unmarshal(msg.Metadata, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	return msg, meta
}

func TestPublisherEncodesJPEGAndSetsMetadata(t *testing.T) {
	rec := frame.Record{
		Metadata: frame.Metadata{
			frame.KeyEncodingType:  "jpg",
			frame.KeyEncodingLevel: 80,
		},
		Buffer: testBuffer(8, 4),
	}
	msg, meta := runOne(t, rec, false)

	img, format, err := image.Decode(bytes.NewReader(msg.Payload))
	if err != nil {
		t.Fatalf("decode jpeg payload: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("expected 8x4, got %dx%d", b.Dx(), b.Dy())
	}

	if h, _ := meta.Int(frame.KeyHeight); h != 4 {
		t.Fatalf("metadata height = %d, want 4", h)
	}
	if w, _ := meta.Int(frame.KeyWidth); w != 8 {
		t.Fatalf("metadata width = %d, want 8", w)
	}
	if c, _ := meta.Int(frame.KeyChannel); c != 3 {
		t.Fatalf("metadata channel = %d, want 3", c)
	}
	handle, ok := meta.String(frame.KeyImgHandle)
	if !ok || len(handle) != 8 {
		t.Fatalf("expected 8-char img_handle, got %q", handle)
	}
	if _, err := hex.DecodeString(handle); err != nil {
		t.Fatalf("img_handle %q is not hex: %v", handle, err)
	}
}

func TestPublisherResizesBeforeEncode(t *testing.T) {
	rec := frame.Record{
		Metadata: frame.Metadata{
			frame.KeyEncodingType:  "png",
			frame.KeyEncodingLevel: 6,
			frame.KeyResolution:    "2x2",
		},
		Buffer: testBuffer(8, 8),
	}
	msg, meta := runOne(t, rec, false)

	img, format, err := image.Decode(bytes.NewReader(msg.Payload))
	if err != nil {
		t.Fatalf("decode png payload: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
		t.Fatalf("expected resized 2x2, got %dx%d", b.Dx(), b.Dy())
	}
	if h, _ := meta.Int(frame.KeyHeight); h != 2 {
		t.Fatalf("metadata height = %d, want post-resize 2", h)
	}
}

func TestPublisherOutOfRangeLevelLeavesBufferRaw(t *testing.T) {
	buf := testBuffer(4, 4)
	rec := frame.Record{
		Metadata: frame.Metadata{
			frame.KeyEncodingType:  "jpg",
			frame.KeyEncodingLevel: 150,
		},
		Buffer: buf,
	}
	msg, _ := runOne(t, rec, false)
	if !bytes.Equal(msg.Payload, buf.Pix) {
		t.Fatalf("expected raw buffer to pass through unchanged on out-of-range level")
	}
}

func TestPublisherUnsupportedEncodingTypeLeavesBufferRaw(t *testing.T) {
	buf := testBuffer(4, 4)
	rec := frame.Record{
		Metadata: frame.Metadata{
			frame.KeyEncodingType:  "bmp",
			frame.KeyEncodingLevel: 5,
		},
		Buffer: buf,
	}
	msg, _ := runOne(t, rec, false)
	if !bytes.Equal(msg.Payload, buf.Pix) {
		t.Fatalf("expected raw buffer to pass through unchanged for unsupported type")
	}
}

func TestPublisherProfilingStampsAllTimestamps(t *testing.T) {
	rec := frame.Record{
		Metadata: frame.Metadata{
			frame.KeyTsEntry: frame.NowMillis(),
		},
		Buffer: testBuffer(2, 2),
	}
	_, meta := runOne(t, rec, true)
	for _, key := range []string{frame.KeyTsQueueWait, frame.KeyTsEncodeStart, frame.KeyTsEncodeEnd, frame.KeyTsExit} {
		if _, ok := meta[key]; !ok {
			t.Fatalf("expected profiling key %q to be stamped", key)
		}
	}
}

func TestNewImgHandleProducesDistinctValues(t *testing.T) {
	a := newImgHandle()
	b := newImgHandle()
	if len(a) != 8 || len(b) != 8 {
		t.Fatalf("expected 8-char handles, got %q and %q", a, b)
	}
	if a == b {
		t.Fatalf("expected distinct img_handle values across calls")
	}
}
