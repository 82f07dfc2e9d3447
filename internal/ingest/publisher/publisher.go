// Package publisher implements the pipeline's last stage: it dequeues
// filtered records, resizes and encodes the buffer per the per-record
// descriptor carried in its metadata, stamps the img_handle and remaining
// profiling timestamps, and hands the result to a Bus.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/factoryedge/videoingest/internal/ingest/bus"
	"github.com/factoryedge/videoingest/internal/ingest/frame"
	"github.com/factoryedge/videoingest/internal/ingest/ingesterr"
	"github.com/factoryedge/videoingest/internal/ingest/metrics"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

const dequeueTimeout = 100 * time.Millisecond

// Publisher drains a single filter-output queue and submits every record
// to one bus topic. The data model guarantees exactly one publish topic,
// so there is exactly one Publisher worker, not a pool sized per topic.
type Publisher struct {
	in        *queue.Queue
	topic     string
	bus       bus.Bus
	logger    servicelog.Logger
	profiling bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Publisher for topic, draining in and submitting to b.
func New(in *queue.Queue, topic string, b bus.Bus, logger servicelog.Logger, profiling bool) *Publisher {
	return &Publisher{
		in:        in,
		topic:     topic,
		bus:       b,
		logger:    logger,
		profiling: profiling,
	}
}

// Start spawns the worker goroutine.
func (p *Publisher) Start() {
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run()
}

// Stop signals the worker to terminate. Idempotent.
func (p *Publisher) Stop() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
}

// Join blocks until the worker has exited.
func (p *Publisher) Join() {
	<-p.doneCh
}

func (p *Publisher) run() {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		rec, ok := p.in.DequeueTimeout(dequeueTimeout)
		if !ok {
			continue
		}
		if err := p.process(rec); err != nil {
			var pubErr *ingesterr.PublishError
			if errors.As(err, &pubErr) && pubErr.Closed {
				p.logger.Error("publisher: bus closed, stopping", servicelog.Error(err))
				return
			}
			p.logger.Error("publisher: dropping record", servicelog.Error(err))
		}
	}
}

// process implements the per-record processing sequence: profiling stamps,
// optional resize, optional encode, metadata finalization, img_handle
// assignment, and submission to the bus.
func (p *Publisher) process(rec frame.Record) error {
	meta := rec.Metadata
	if meta == nil {
		meta = frame.Metadata{}
	}
	buf := rec.Buffer

	if p.profiling {
		if entry, ok := meta.Int(frame.KeyTsEntry); ok {
			wait := frame.NowMillis() - int64(entry)
			meta[frame.KeyTsQueueWait] = wait
			metrics.QueueWait.WithLabelValues(p.topic).Observe(float64(wait))
		}
	}

	encType, hasType := meta.String(frame.KeyEncodingType)
	encLevel, hasLevel := meta.Int(frame.KeyEncodingLevel)
	hasEncoding := hasType && hasLevel && encType != ""

	if resolution, ok := meta.String(frame.KeyResolution); ok && resolution != "" {
		if w, h, ok := parseResolution(resolution); ok {
			buf = resizeBuffer(buf, w, h)
		} else {
			p.logger.Warn("publisher: malformed resolution, skipping resize", servicelog.String("resolution", resolution))
		}
	}
	buf = buf.Normalize()
	height, width, channel := buf.Height, buf.Width, buf.Channels

	if p.profiling {
		meta[frame.KeyTsEncodeStart] = frame.NowMillis()
	}

	encodeStart := frame.NowMillis()
	payload := buf.Pix
	encodeLabel := "none"
	if hasEncoding {
		encodeLabel = encType
		encoded, err := encodeBuffer(buf, encType, encLevel)
		if err != nil {
			p.logger.Warn("publisher: encode failed, leaving buffer unchanged",
				servicelog.String("type", encType), servicelog.Int("level", encLevel), servicelog.Error(err))
		} else {
			payload = encoded
		}
	}
	metrics.EncodeLatency.WithLabelValues(encodeLabel).Observe(float64(frame.NowMillis() - encodeStart))

	if p.profiling {
		meta[frame.KeyTsEncodeEnd] = frame.NowMillis()
	}

	meta[frame.KeyHeight] = height
	meta[frame.KeyWidth] = width
	meta[frame.KeyChannel] = channel
	meta[frame.KeyImgHandle] = newImgHandle()

	if p.profiling {
		meta[frame.KeyTsExit] = frame.NowMillis()
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return &ingesterr.PublishError{Topic: p.topic, Err: err}
	}

	if err := p.bus.Publish(context.Background(), p.topic, metaBytes, payload); err != nil {
		metrics.PublishErrors.WithLabelValues(p.topic).Inc()
		return &ingesterr.PublishError{Topic: p.topic, Closed: errors.Is(err, bus.ErrClosed), Err: err}
	}
	metrics.FramesPublished.WithLabelValues(p.topic).Inc()
	return nil
}

// encodeBuffer dispatches to the encoder matching encType, per the data
// model's two supported encodings. Any other type is an EncodeError: the
// caller logs it and leaves the buffer as raw bytes.
func encodeBuffer(buf frame.Buffer, encType string, level int) ([]byte, error) {
	switch encType {
	case "jpg", "jpeg":
		out, err := encodeJPEG(buf, level)
		if err != nil {
			return nil, &ingesterr.EncodeError{Type: encType, Level: level, Err: err}
		}
		return out, nil
	case "png":
		out, err := encodePNG(buf, level)
		if err != nil {
			return nil, &ingesterr.EncodeError{Type: encType, Level: level, Err: err}
		}
		return out, nil
	default:
		return nil, &ingesterr.EncodeError{Type: encType, Level: level, Err: errUnsupportedEncoding}
	}
}

var errUnsupportedEncoding = errors.New("unsupported encoding type")

// newImgHandle returns the first 8 hex characters of a freshly generated
// UUIDv1's string form, matching str(uuid.uuid1())[:8].
func newImgHandle() string {
	id, err := uuid.NewUUID()
	if err != nil {
		id = uuid.New()
	}
	return id.String()[:8]
}
