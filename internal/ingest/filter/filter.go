// Package filter implements the pluggable Filter stage: a name-keyed
// registry of filter constructors, plus the two reference filters
// (bypass and pcb) described by the component design.
package filter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
	"github.com/factoryedge/videoingest/internal/ingest/ingesterr"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

// backgroundCtx is used for output-queue enqueues, which should block on
// backpressure the same way every other pipeline producer does.
var backgroundCtx = context.Background()

// dequeueTimeout bounds how long a worker waits on an empty queue before
// re-checking its stop flag, per the concurrency model's "interruptible
// dequeue (reasonable timeout <=100ms)" contract.
const dequeueTimeout = 100 * time.Millisecond

// Config is the filter descriptor, trimmed to what a constructor needs.
// Extra carries filter-specific fields (n_total_px, n_left_px, ...) still
// as raw JSON-decoded values (float64/string/bool).
type Config struct {
	Name         string
	TrainingMode bool
	Extra        map[string]any
}

func (c Config) float(key string) (float64, bool) {
	switch v := c.Extra[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func (c Config) int(key string) (int, bool) {
	v, ok := c.float(key)
	return int(v), ok
}

// Filter is the contract every filter stage implementation satisfies: a
// single worker (or internal pool) reading input and writing to output,
// started and stopped like the Ingestor.
type Filter interface {
	Start() error
	Stop()
	Join()
}

// Factory builds a Filter from a descriptor and the two queues it sits
// between. profiling mirrors the process-wide PROFILING_MODE flag.
type Factory func(cfg Config, in, out *queue.Queue, logger servicelog.Logger, profiling bool) (Filter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a named filter constructor to the registry. Called from
// each filter implementation's init(), and safe to call again in tests
// with a replacement factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New looks up cfg.Name in the registry and constructs a Filter. An
// unknown name is a ConfigError: fatal at startup, logged-and-ignored on
// reconfigure (the supervisor decides which).
func New(cfg Config, in, out *queue.Queue, logger servicelog.Logger, profiling bool) (Filter, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown filter %q", ingesterr.ErrConfig, cfg.Name)
	}
	return factory(cfg, in, out, logger, profiling)
}

// worker is the shared start/stop/join/dequeue-loop scaffolding every
// filter embeds, so bypass.go and pcb.go only need to supply the
// per-record decision.
type worker struct {
	in      *queue.Queue
	name    string
	logger  servicelog.Logger
	handle  func(frame.Record)
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

func newWorker(in *queue.Queue, name string, logger servicelog.Logger, handle func(frame.Record)) *worker {
	return &worker{in: in, name: name, logger: logger, handle: handle}
}

func (w *worker) Start() error {
	w.mu.Lock()
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.started = true
	w.mu.Unlock()
	go w.run()
	return nil
}

func (w *worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *worker) Join() {
	w.mu.Lock()
	done := w.doneCh
	started := w.started
	w.mu.Unlock()
	if !started {
		return
	}
	<-done
}

func (w *worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), dequeueTimeout)
		rec, ok := w.in.Dequeue(ctx)
		cancel()
		if !ok {
			continue
		}
		w.dispatch(rec)
	}
}

// dispatch runs handle for one record, recovering a panic as a
// *ingesterr.FilterError per spec.md §7: the offending frame is dropped
// and the worker continues, rather than the panic taking the process down.
func (w *worker) dispatch(rec frame.Record) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			w.logger.Error("filter: dropping frame after panic",
				servicelog.String("filter", w.name),
				servicelog.Error(&ingesterr.FilterError{Filter: w.name, Err: err}))
		}
	}()
	w.handle(rec)
}
