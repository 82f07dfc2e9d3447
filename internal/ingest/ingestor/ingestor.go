// Package ingestor implements the Frame Source side of the pipeline: the
// read loop described in the component design, including the bounded
// reconnection procedure and the loop_video tri-state.
package ingestor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
	"github.com/factoryedge/videoingest/internal/ingest/ingesterr"
	"github.com/factoryedge/videoingest/internal/ingest/metrics"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
	"github.com/factoryedge/videoingest/internal/ingest/source"
)

// MaxFail is the number of consecutive empty reads (loop_video absent)
// that trigger the reconnection sub-procedure.
const MaxFail = 10

// MaxRetry is the number of reconnection attempts allowed before the
// Ingestor gives up and surfaces ErrSourceFatal.
const MaxRetry = 5

// LoopMode is the source descriptor's loop_video tri-state.
type LoopMode int

const (
	// LoopAbsent reports a normal end of stream as an error rather than a
	// clean termination (matches loop_video entirely unset).
	LoopAbsent LoopMode = iota
	LoopTrue
	LoopFalse
)

// Descriptor mirrors the source descriptor of the data model.
type Descriptor struct {
	VideoSrc      string
	PollInterval  time.Duration
	Loop          LoopMode
	EncodingType  string
	EncodingLevel int
	HasEncoding   bool
	Resolution    string
	Profiling     bool
}

// openFunc abstracts source.Resolve so tests can inject a fake source.
type openFunc func(Descriptor) (source.VideoSource, error)

// Ingestor owns a single VideoSource and feeds frame.Record values into a
// bounded queue until stopped or until the source is fatally lost.
type Ingestor struct {
	desc   Descriptor
	queue  *queue.Queue
	logger servicelog.Logger
	open   openFunc

	mu      sync.Mutex
	src     source.VideoSource
	stopCh  chan struct{}
	doneCh  chan struct{}
	lastErr error
	started bool
}

// New constructs an Ingestor. It does not open the source yet; that
// happens on Start so a bad video_src fails fast and synchronously.
func New(desc Descriptor, q *queue.Queue, logger servicelog.Logger) *Ingestor {
	return &Ingestor{
		desc:   desc,
		queue:  q,
		logger: logger,
		open: func(d Descriptor) (source.VideoSource, error) {
			return source.Resolve(source.Descriptor{VideoSrc: d.VideoSrc})
		},
	}
}

// Err returns the error that caused the Ingestor to exit, or nil if it
// exited cleanly (stop() called, or loop_video==false end of stream).
func (ig *Ingestor) Err() error {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return ig.lastErr
}

// Start opens the source and spawns a single worker, returning as soon as
// the initial open succeeds (or fails, in which case the caller should
// treat it as a ConfigError-class startup failure).
func (ig *Ingestor) Start() error {
	ctx := context.Background()
	src, err := ig.open(ig.desc)
	if err != nil {
		return err
	}
	if err := src.Open(ctx); err != nil {
		return err
	}

	ig.mu.Lock()
	ig.src = src
	ig.stopCh = make(chan struct{})
	ig.doneCh = make(chan struct{})
	ig.started = true
	ig.mu.Unlock()

	go ig.run()
	return nil
}

// Stop signals the worker to terminate. It is idempotent and does not
// block; call Join to wait for the worker to actually exit.
func (ig *Ingestor) Stop() {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if !ig.started {
		return
	}
	select {
	case <-ig.stopCh:
	default:
		close(ig.stopCh)
	}
}

// Join blocks until the worker has exited.
func (ig *Ingestor) Join() {
	ig.mu.Lock()
	done := ig.doneCh
	started := ig.started
	ig.mu.Unlock()
	if !started {
		return
	}
	<-done
}

func (ig *Ingestor) run() {
	defer close(ig.doneCh)

	src := ig.src
	failCount := 0

	defer func() {
		src.Close()
	}()

	for {
		select {
		case <-ig.stopCh:
			return
		default:
		}

		ctx := context.Background()
		buf, err := src.Read(ctx)
		if err == nil {
			metrics.FramesIngested.WithLabelValues(ig.desc.VideoSrc).Inc()
			ig.publish(buf)
			failCount = 0
			if ig.desc.PollInterval > 0 {
				if ig.sleepOrStop(ig.desc.PollInterval) {
					return
				}
			}
			continue
		}

		switch ig.desc.Loop {
		case LoopTrue:
			src.Close()
			newSrc, openErr := ig.open(ig.desc)
			if openErr == nil {
				openErr = newSrc.Open(ctx)
			}
			if openErr != nil {
				ig.setErr(ingesterr.ErrSourceFatal)
				return
			}
			src = newSrc
			ig.mu.Lock()
			ig.src = src
			ig.mu.Unlock()
			continue
		case LoopFalse:
			return
		default: // LoopAbsent
			if errors.Is(err, source.ErrEndOfStream) {
				ig.setErr(ingesterr.ErrEndOfStream)
				return
			}
			failCount++
			ig.logger.Warn("ingestor: read failed", servicelog.Error(err), servicelog.Int("fail_count", failCount))
			if failCount >= MaxFail {
				newSrc, reconErr := ig.reconnect(ctx, src)
				if reconErr != nil {
					ig.setErr(ingesterr.ErrSourceFatal)
					return
				}
				src = newSrc
				ig.mu.Lock()
				ig.src = src
				ig.mu.Unlock()
				failCount = 0
			}
		}
	}
}

// reconnect implements the reconnection sub-procedure: close the current
// handle, attempt to reopen up to MaxRetry times. poll_interval is not
// applied between attempts, per the read loop's edge-case contract.
func (ig *Ingestor) reconnect(ctx context.Context, src source.VideoSource) (source.VideoSource, error) {
	src.Close()

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), MaxRetry-1)
	var (
		newSrc  source.VideoSource
		err     error
		attempt int
	)
	op := func() error {
		attempt++
		newSrc, err = ig.open(ig.desc)
		if err == nil {
			err = newSrc.Open(ctx)
		}
		if err != nil {
			metrics.ReconnectAttempts.WithLabelValues(ig.desc.VideoSrc, "failure").Inc()
			ig.logger.Warn("ingestor: reconnect attempt failed", servicelog.Int("attempt", attempt), servicelog.Error(err))
			return err
		}
		metrics.ReconnectAttempts.WithLabelValues(ig.desc.VideoSrc, "success").Inc()
		return nil
	}
	if retryErr := backoff.Retry(op, b); retryErr != nil {
		return nil, ingesterr.ErrSourceFatal
	}
	ig.logger.Info("ingestor: reconnected", servicelog.Int("attempt", attempt))
	return newSrc, nil
}

func (ig *Ingestor) publish(buf frame.Buffer) {
	buf = buf.Normalize()
	meta := frame.Metadata{}
	if ig.desc.HasEncoding {
		meta[frame.KeyEncodingType] = ig.desc.EncodingType
		meta[frame.KeyEncodingLevel] = ig.desc.EncodingLevel
	}
	if ig.desc.Resolution != "" {
		meta[frame.KeyResolution] = ig.desc.Resolution
	}
	if ig.desc.Profiling {
		meta[frame.KeyTsEntry] = frame.NowMillis()
	}
	rec := frame.Record{Metadata: meta, Buffer: buf}

	// A full queue blocks here, same as every other producer; this does
	// not deadlock stop() because the Filter keeps draining until it is
	// told to stop, which only happens after this worker has exited.
	ig.queue.Enqueue(context.Background(), rec)
}

// sleepOrStop sleeps for d unless stop is signalled first, in which case
// it returns true so the caller can exit without completing the sleep.
func (ig *Ingestor) sleepOrStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ig.stopCh:
		return true
	}
}

func (ig *Ingestor) setErr(err error) {
	ig.mu.Lock()
	ig.lastErr = err
	ig.mu.Unlock()
}
