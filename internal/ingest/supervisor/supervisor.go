// Package supervisor owns the pipeline's lifecycle: constructing the
// queues and the three stages from a configuration snapshot, starting
// them in reverse data-flow order, stopping them in data-flow order, and
// reacting to configuration changes by restarting the affected stages.
package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/bus"
	"github.com/factoryedge/videoingest/internal/ingest/config"
	"github.com/factoryedge/videoingest/internal/ingest/filter"
	"github.com/factoryedge/videoingest/internal/ingest/ingesterr"
	"github.com/factoryedge/videoingest/internal/ingest/ingestor"
	"github.com/factoryedge/videoingest/internal/ingest/metrics"
	"github.com/factoryedge/videoingest/internal/ingest/publisher"
	"github.com/factoryedge/videoingest/internal/ingest/queue"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

// queueSampleInterval is how often the running pipeline reports queue
// depth gauges.
const queueSampleInterval = time.Second

// BusFactory builds the Bus the Publisher submits to. Supervisor calls it
// once per start(); a failure here is a fatal startup error.
type BusFactory func(topic string) (bus.Bus, error)

// Supervisor owns one pipeline instance: its queues and its three running
// stages. It is not safe for concurrent use from multiple goroutines other
// than the configuration watcher callback, which is itself serialized by
// the config store.
type Supervisor struct {
	topic     string
	newBus    BusFactory
	logger    servicelog.Logger
	profiling bool

	mu         sync.Mutex
	desc       config.Descriptors
	bus        bus.Bus
	inQueue    *queue.Queue
	outQueue   *queue.Queue
	ing        *ingestor.Ingestor
	filt       filter.Filter
	pub        *publisher.Publisher
	sampleStop chan struct{}
	sampleDone chan struct{}
	running    bool
}

// New builds a Supervisor for the single configured publish topic.
func New(topic string, newBus BusFactory, logger servicelog.Logger, profiling bool) *Supervisor {
	return &Supervisor{topic: topic, newBus: newBus, logger: logger, profiling: profiling}
}

// Start constructs the pipeline from desc and starts its stages in reverse
// data-flow order: Publisher, then Filter, then Ingestor. Returns once all
// stages are running.
func (s *Supervisor) Start(desc config.Descriptors) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(desc)
}

func (s *Supervisor) startLocked(desc config.Descriptors) error {
	if s.running {
		return nil
	}

	b, err := s.newBus(s.topic)
	if err != nil {
		return fmt.Errorf("%w: failed to construct bus for topic %q: %v", ingesterr.ErrConfig, s.topic, err)
	}

	queueSize := desc.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	// When no filter is configured the two queues collapse into one: the
	// Publisher consumes directly from the Ingestor's queue, and no filter
	// stage is started (spec.md §3).
	var inQueue, outQueue *queue.Queue
	var filt filter.Filter
	if desc.HasFilter {
		inQueue = queue.New(queueSize)
		outQueue = queue.New(queueSize)
		filt, err = filter.New(desc.Filter, inQueue, outQueue, s.logger.With(servicelog.String("filter", desc.Filter.Name)), s.profiling)
		if err != nil {
			b.Close()
			return err
		}
	} else {
		q := queue.New(queueSize)
		inQueue = q
		outQueue = q
	}

	pub := publisher.New(outQueue, s.topic, b, s.logger.With(servicelog.String("topic", s.topic)), s.profiling)
	pub.Start()

	if filt != nil {
		if err := filt.Start(); err != nil {
			pub.Stop()
			pub.Join()
			b.Close()
			return err
		}
	}

	ing := ingestor.New(desc.Ingestor, inQueue, s.logger.With(servicelog.String("source", desc.Ingestor.VideoSrc)))
	if err := ing.Start(); err != nil {
		if filt != nil {
			filt.Stop()
			filt.Join()
		}
		pub.Stop()
		pub.Join()
		b.Close()
		return err
	}

	s.desc = desc
	s.bus = b
	s.inQueue = inQueue
	s.outQueue = outQueue
	s.filt = filt
	s.pub = pub
	s.ing = ing
	s.running = true

	s.sampleStop = make(chan struct{})
	s.sampleDone = make(chan struct{})
	go s.sampleQueues(s.sampleStop, s.sampleDone, inQueue, outQueue)

	s.logger.Info("supervisor: pipeline started", servicelog.String("topic", s.topic))
	return nil
}

// Stop tears down the running pipeline in data-flow order: Ingestor,
// Filter, Publisher. Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	if !s.running {
		return
	}

	close(s.sampleStop)
	<-s.sampleDone

	s.ing.Stop()
	s.ing.Join()
	if err := s.ing.Err(); err != nil && !errors.Is(err, ingesterr.ErrEndOfStream) {
		s.logger.Error("supervisor: ingestor exited with error", servicelog.Error(err))
	}

	if s.filt != nil {
		s.filt.Stop()
		s.filt.Join()
	}

	s.pub.Stop()
	s.pub.Join()

	s.bus.Close()

	s.running = false
	s.logger.Info("supervisor: pipeline stopped", servicelog.String("topic", s.topic))
}

// OnConfigChange implements the reconfiguration policy of spec.md §4.1: a
// changed filter descriptor (in any field) forces a full restart; a
// changed ingestor descriptor with an unchanged filter descriptor
// restarts only the Ingestor, reusing the existing queues, Filter, and
// Publisher; anything else is a no-op.
func (s *Supervisor) OnConfigChange(next config.Descriptors) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return s.startLocked(next)
	}

	filterChanged := next.HasFilter != s.desc.HasFilter || !filterEqual(next.Filter, s.desc.Filter) || next.QueueSize != s.desc.QueueSize
	ingestorChanged := next.Ingestor != s.desc.Ingestor

	switch {
	case filterChanged:
		s.stopLocked()
		return s.startLocked(next)
	case ingestorChanged:
		return s.restartIngestorLocked(next)
	default:
		return nil
	}
}

// restartIngestorLocked replaces the Ingestor alone, reusing the existing
// queues, Filter, and Publisher.
func (s *Supervisor) restartIngestorLocked(next config.Descriptors) error {
	s.ing.Stop()
	s.ing.Join()
	if err := s.ing.Err(); err != nil && !errors.Is(err, ingesterr.ErrEndOfStream) {
		s.logger.Warn("supervisor: previous ingestor exited with error", servicelog.Error(err))
	}

	ing := ingestor.New(next.Ingestor, s.inQueue, s.logger.With(servicelog.String("source", next.Ingestor.VideoSrc)))
	if err := ing.Start(); err != nil {
		return err
	}
	s.ing = ing
	s.desc.Ingestor = next.Ingestor
	s.logger.Info("supervisor: ingestor restarted", servicelog.String("source", next.Ingestor.VideoSrc))
	return nil
}

func (s *Supervisor) sampleQueues(stop, done chan struct{}, in, out *queue.Queue) {
	defer close(done)
	ticker := time.NewTicker(queueSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if in == out {
				metrics.QueueDepth.WithLabelValues("queue").Set(float64(in.Len()))
				continue
			}
			metrics.QueueDepth.WithLabelValues("filter_input").Set(float64(in.Len()))
			metrics.QueueDepth.WithLabelValues("filter_output").Set(float64(out.Len()))
		}
	}
}

func filterEqual(a, b filter.Config) bool {
	if a.Name != b.Name || a.TrainingMode != b.TrainingMode {
		return false
	}
	if len(a.Extra) != len(b.Extra) {
		return false
	}
	for k, v := range a.Extra {
		if b.Extra[k] != v {
			return false
		}
	}
	return true
}
