package filter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
	"github.com/factoryedge/videoingest/internal/ingest/metrics"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

func init() {
	Register("bypass", newBypassFilter)
}

// bypassFilter emits every record unchanged. In training mode it writes
// the raw buffer to disk instead of forwarding it, the same training
// workflow the pass-through filter has always offered.
type bypassFilter struct {
	*worker
	out          *queue.Queue
	logger       servicelog.Logger
	trainingMode bool
	profiling    bool
	dir          string
	counter      int64
}

func newBypassFilter(cfg Config, in, out *queue.Queue, logger servicelog.Logger, profiling bool) (Filter, error) {
	bf := &bypassFilter{
		out:          out,
		logger:       logger,
		trainingMode: cfg.TrainingMode,
		profiling:    profiling,
		dir:          "./frames",
	}
	bf.worker = newWorker(in, "bypass", logger, bf.process)
	return bf, nil
}

func (bf *bypassFilter) process(rec frame.Record) {
	if bf.profiling {
		rec.Metadata[frame.KeyTsFilterEntry] = time.Now().UnixMilli()
	}

	if bf.trainingMode {
		metrics.FramesDropped.WithLabelValues("bypass").Inc()
		bf.dump(rec)
		return
	}

	bf.out.Enqueue(backgroundCtx, rec)
}

func (bf *bypassFilter) dump(rec frame.Record) {
	n := atomic.AddInt64(&bf.counter, 1)
	if err := os.MkdirAll(bf.dir, 0o755); err != nil {
		bf.logger.Error("bypass filter: failed to create training dir", servicelog.Error(err))
		return
	}
	path := filepath.Join(bf.dir, fmt.Sprintf("%d.raw", n))
	if err := os.WriteFile(path, rec.Buffer.Pix, 0o644); err != nil {
		bf.logger.Error("bypass filter: failed to write training frame", servicelog.Error(err))
	}
}
