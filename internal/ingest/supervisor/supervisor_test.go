package supervisor

import (
	"testing"

	"github.com/factoryedge/videoingest/internal/ingest/bus"
	"github.com/factoryedge/videoingest/internal/ingest/config"
	"github.com/factoryedge/videoingest/internal/ingest/filter"
	"github.com/factoryedge/videoingest/internal/ingest/ingestor"
	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

func channelBusFactory(topic string) (bus.Bus, error) {
	return bus.NewChannelBus(4), nil
}

func baseDescriptors(t *testing.T) config.Descriptors {
	t.Helper()
	return config.Descriptors{
		Ingestor:  ingestor.Descriptor{VideoSrc: t.TempDir()},
		Filter:    filter.Config{Name: "bypass"},
		HasFilter: true,
		QueueSize: 4,
	}
}

func TestSupervisorStartStopIsIdempotent(t *testing.T) {
	s := New("frames", channelBusFactory, servicelog.NewNop(), false)
	desc := baseDescriptors(t)

	if err := s.Start(desc); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(desc); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}
	s.Stop()
	s.Stop()
	if s.running {
		t.Fatalf("expected supervisor to report stopped")
	}
}

func TestSupervisorFilterChangeRestartsFully(t *testing.T) {
	s := New("frames", channelBusFactory, servicelog.NewNop(), false)
	desc := baseDescriptors(t)
	if err := s.Start(desc); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	prevIng, prevFilt, prevPub := s.ing, s.filt, s.pub

	next := desc
	next.Filter = filter.Config{Name: "bypass", TrainingMode: true}
	if err := s.OnConfigChange(next); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}

	if s.ing == prevIng || s.filt == prevFilt || s.pub == prevPub {
		t.Fatalf("expected a full restart (new ingestor, filter, and publisher) on filter config change")
	}
}

func TestSupervisorIngestorOnlyChangeRestartsIngestorOnly(t *testing.T) {
	s := New("frames", channelBusFactory, servicelog.NewNop(), false)
	desc := baseDescriptors(t)
	if err := s.Start(desc); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	prevIng, prevFilt, prevPub := s.ing, s.filt, s.pub

	next := desc
	next.Ingestor.VideoSrc = t.TempDir()
	if err := s.OnConfigChange(next); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}

	if s.ing == prevIng {
		t.Fatalf("expected a new ingestor after an ingestor-only config change")
	}
	if s.filt != prevFilt || s.pub != prevPub {
		t.Fatalf("expected filter and publisher to be reused, not restarted")
	}
}

func TestSupervisorNoFilterCollapsesToOneQueue(t *testing.T) {
	s := New("frames", channelBusFactory, servicelog.NewNop(), false)
	desc := config.Descriptors{
		Ingestor:  ingestor.Descriptor{VideoSrc: t.TempDir()},
		HasFilter: false,
		QueueSize: 4,
	}
	if err := s.Start(desc); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.filt != nil {
		t.Fatalf("expected no filter stage when HasFilter is false, got %v", s.filt)
	}
	if s.inQueue != s.outQueue {
		t.Fatalf("expected the input and output queues to collapse into one when no filter is configured")
	}
}

func TestSupervisorNoopWhenNothingChanged(t *testing.T) {
	s := New("frames", channelBusFactory, servicelog.NewNop(), false)
	desc := baseDescriptors(t)
	if err := s.Start(desc); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	prevIng, prevFilt, prevPub := s.ing, s.filt, s.pub

	if err := s.OnConfigChange(desc); err != nil {
		t.Fatalf("OnConfigChange: %v", err)
	}

	if s.ing != prevIng || s.filt != prevFilt || s.pub != prevPub {
		t.Fatalf("expected no restart when the config is unchanged")
	}
}
