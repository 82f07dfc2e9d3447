package ingestor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
	"github.com/factoryedge/videoingest/internal/ingest/source"
)

// fakeSource is a scripted VideoSource: Read pops the next scripted
// result, repeating the last one forever once the script is exhausted.
type fakeSource struct {
	opens   int32
	results []readResult
	pos     int
}

type readResult struct {
	buf frame.Buffer
	err error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Open(ctx context.Context) error {
	atomic.AddInt32(&f.opens, 1)
	return nil
}

func (f *fakeSource) Read(ctx context.Context) (frame.Buffer, error) {
	if len(f.results) == 0 {
		return frame.Buffer{}, source.ErrNoFrame
	}
	r := f.results[f.pos]
	if f.pos < len(f.results)-1 {
		f.pos++
	}
	return r.buf, r.err
}

func (f *fakeSource) Close() error { return nil }

func testBuf() frame.Buffer {
	return frame.Buffer{Pix: make([]byte, 12), Height: 2, Width: 2, Channels: 3}
}

func TestIngestorMaxFailTriggersReconnect(t *testing.T) {
	results := make([]readResult, 0, MaxFail+2)
	for i := 0; i < MaxFail; i++ {
		results = append(results, readResult{err: source.ErrNoFrame})
	}
	results = append(results, readResult{buf: testBuf()})

	fs := &fakeSource{results: results}
	q := queue.New(4)
	ig := New(Descriptor{Loop: LoopAbsent}, q, servicelog.NewNop())
	ig.open = func(Descriptor) (source.VideoSource, error) { return fs, nil }

	stopDrain := drainQueue(q)
	defer stopDrain()

	if err := ig.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ig.Stop()
		ig.Join()
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&fs.opens) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected reconnect to reopen the source, opens=%d", fs.opens)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestIngestorFatalAfterMaxRetryExhausted(t *testing.T) {
	results := make([]readResult, 0, MaxFail)
	for i := 0; i < MaxFail; i++ {
		results = append(results, readResult{err: source.ErrNoFrame})
	}
	fs := &fakeSource{results: results}
	q := queue.New(4)
	ig := New(Descriptor{Loop: LoopAbsent}, q, servicelog.NewNop())

	attempts := 0
	ig.open = func(Descriptor) (source.VideoSource, error) {
		attempts++
		if attempts == 1 {
			return fs, nil
		}
		// every reconnection attempt fails
		return nil, errors.New("cannot reopen")
	}

	if err := ig.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ig.Join()

	if ig.Err() == nil {
		t.Fatalf("expected a fatal error after retry budget exhaustion")
	}
	// 1 initial open + MaxRetry reconnection attempts.
	if attempts != 1+MaxRetry {
		t.Fatalf("expected %d open attempts, got %d", 1+MaxRetry, attempts)
	}
}

func TestIngestorLoopModeRewinds(t *testing.T) {
	fs := &fakeSource{results: []readResult{
		{buf: testBuf()},
		{err: source.ErrNoFrame},
	}}
	q := queue.New(1)
	ig := New(Descriptor{Loop: LoopTrue}, q, servicelog.NewNop())
	ig.open = func(Descriptor) (source.VideoSource, error) { return fs, nil }

	if err := ig.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ig.Stop()
		ig.Join()
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&fs.opens) < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated reopen on loop_video=true, opens=%d", fs.opens)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestIngestorStopIsIdempotent(t *testing.T) {
	fs := &fakeSource{results: []readResult{{buf: testBuf()}}}
	q := queue.New(4)
	ig := New(Descriptor{Loop: LoopFalse}, q, servicelog.NewNop())
	ig.open = func(Descriptor) (source.VideoSource, error) { return fs, nil }

	stopDrain := drainQueue(q)
	defer stopDrain()

	if err := ig.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ig.Stop()
	ig.Stop()
	ig.Join()
}

// drainQueue keeps a queue from filling up so a scripted source that keeps
// producing successful reads doesn't block forever in Enqueue. Returns a
// function that stops the drain goroutine.
func drainQueue(q *queue.Queue) func() {
	stop := make(chan struct{})
	go func() {
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			q.Dequeue(ctx)
			cancel()
			select {
			case <-stop:
				return
			default:
			}
		}
	}()
	return func() { close(stop) }
}

