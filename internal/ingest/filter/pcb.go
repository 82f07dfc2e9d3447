package filter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/frame"
	"github.com/factoryedge/videoingest/internal/ingest/ingesterr"
	"github.com/factoryedge/videoingest/internal/ingest/metrics"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

func init() {
	Register("pcb", newPCBFilter)
}

// coolDownFrames is the number of suppressed frames following an emission;
// the filter releases on the next (8th) frame after that.
const coolDownFrames = 7

// pcbFilter is a visual trigger for PCB presence: it tracks a running
// background estimate and emits a frame when a sufficiently large, centered,
// non-edge-touching foreground blob appears. There is no CV library in
// this module's dependency stack, so the background subtractor is a
// per-pixel exponential moving average rather than MOG2; threshold,
// morphological close and contour-bounding-box extraction are
// reimplemented on raw grayscale slices (see imgproc.go).
type pcbFilter struct {
	*worker
	out       *queue.Queue
	logger    servicelog.Logger
	profiling bool

	nTotalPx, nLeftPx, nRightPx int
	trainingMode                bool
	dir                         string
	counter                     int64

	background     []float64
	width, height  int
	locked         bool
	lockFrameCount int

	// detectOverride lets tests exercise the lock/cool-down state machine
	// without driving the full background-subtraction pipeline. Left nil
	// in production, where checkFrame does the real work.
	detectOverride func(frame.Buffer) bool
}

func newPCBFilter(cfg Config, in, out *queue.Queue, logger servicelog.Logger, profiling bool) (Filter, error) {
	nTotal, ok := cfg.int("n_total_px")
	if !ok {
		return nil, fmt.Errorf("%w: pcb filter requires n_total_px", ingesterr.ErrConfig)
	}
	nLeft, ok := cfg.int("n_left_px")
	if !ok {
		return nil, fmt.Errorf("%w: pcb filter requires n_left_px", ingesterr.ErrConfig)
	}
	nRight, ok := cfg.int("n_right_px")
	if !ok {
		return nil, fmt.Errorf("%w: pcb filter requires n_right_px", ingesterr.ErrConfig)
	}

	pf := &pcbFilter{
		out:          out,
		logger:       logger,
		profiling:    profiling,
		nTotalPx:     nTotal,
		nLeftPx:      nLeft,
		nRightPx:     nRight,
		trainingMode: cfg.TrainingMode,
		dir:          "./frames",
	}
	pf.worker = newWorker(in, "pcb", logger, pf.process)
	return pf, nil
}

func (pf *pcbFilter) process(rec frame.Record) {
	if pf.profiling {
		rec.Metadata[frame.KeyTsFilterEntry] = time.Now().UnixMilli()
	}

	if pf.trainingMode {
		metrics.FramesDropped.WithLabelValues("pcb").Inc()
		pf.dump(rec)
		return
	}

	detect := pf.checkFrame
	if pf.detectOverride != nil {
		detect = pf.detectOverride
	}

	if !pf.locked {
		if detect(rec.Buffer) {
			rec.Metadata[frame.KeyUserData] = 1
			pf.out.Enqueue(backgroundCtx, rec)
			pf.locked = true
			pf.lockFrameCount = 0
			return
		}
		metrics.FramesDropped.WithLabelValues("pcb").Inc()
		return
	}

	// Still locked: keep the background model current but suppress
	// emission until the cool-down elapses.
	detect(rec.Buffer)
	metrics.FramesDropped.WithLabelValues("pcb").Inc()
	pf.lockFrameCount++
	if pf.lockFrameCount == coolDownFrames {
		pf.locked = false
	}
}

// checkFrame updates the background model from buf and, when the filter
// is not locked, reports whether buf is a key frame per the predicate
// bundle: total/left/right pixel counts, a found contour, no edge touch,
// and a horizontally centered bounding box.
func (pf *pcbFilter) checkFrame(buf frame.Buffer) bool {
	gray := toGray(buf)
	width, height := buf.Width, buf.Height
	if pf.background == nil || pf.width != width || pf.height != height {
		pf.background = make([]float64, len(gray))
		for i, v := range gray {
			pf.background[i] = float64(v)
		}
		pf.width, pf.height = width, height
		return false
	}

	const alpha = 0.05
	diff := make([]byte, len(gray))
	for i, v := range gray {
		d := float64(v) - pf.background[i]
		if d < 0 {
			d = -d
		}
		if d > 255 {
			d = 255
		}
		diff[i] = byte(d)
		pf.background[i] = pf.background[i]*(1-alpha) + float64(v)*alpha
	}

	if pf.locked {
		return false
	}

	threshold := otsuThreshold(diff)
	mask := binarize(diff, threshold)
	mask = morphClose(mask, width, height, 20, 20)

	nTotal := countWhite(mask, width, height, 0, width)
	nLeft := countWhite(mask, width, height, 0, 10)
	nRight := countWhite(mask, width, height, width-10, width)

	if !(nTotal > pf.nTotalPx && nLeft < pf.nLeftPx && nRight < pf.nRightPx) {
		return false
	}

	box, found := largestComponent(mask, width, height)
	if !found {
		return false
	}

	if box.x == 0 || (box.x+box.w) == width {
		return false
	}
	cX := box.x + box.w/2
	center := width / 2
	return cX >= center-100 && cX <= center+100
}

func (pf *pcbFilter) dump(rec frame.Record) {
	n := atomic.AddInt64(&pf.counter, 1)
	if err := os.MkdirAll(pf.dir, 0o755); err != nil {
		pf.logger.Error("pcb filter: failed to create training dir", servicelog.Error(err))
		return
	}
	path := filepath.Join(pf.dir, fmt.Sprintf("%d.raw", n))
	if err := os.WriteFile(path, rec.Buffer.Pix, 0o644); err != nil {
		pf.logger.Error("pcb filter: failed to write training frame", servicelog.Error(err))
	}
}
