package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/factoryedge/videoingest/internal/ingest/filter"
	"github.com/factoryedge/videoingest/internal/ingest/ingesterr"
	"github.com/factoryedge/videoingest/internal/ingest/ingestor"
)

// Descriptors is the parsed result of the "/<AppName>/config" blob: an
// ingestor descriptor (required), an optional filter descriptor, and the
// queue capacity both inter-stage queues share.
type Descriptors struct {
	Ingestor  ingestor.Descriptor
	Filter    filter.Config
	HasFilter bool
	QueueSize int
}

// defaultQueueSize is the queue capacity used when no filter is
// configured, per spec.md §3.
const defaultQueueSize = 10

type configBlob struct {
	Ingestor map[string]any `json:"ingestor"`
	Filter   map[string]any `json:"filter"`
}

// Parse decodes the configuration blob per §6: "ingestor" is required,
// "filter" optional. profiling threads PROFILING_MODE into the ingestor
// descriptor so the read loop stamps ts_vi_entry.
func Parse(raw string, profiling bool) (Descriptors, error) {
	var blob configBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return Descriptors{}, fmt.Errorf("%w: invalid config JSON: %v", ingesterr.ErrConfig, err)
	}
	if blob.Ingestor == nil {
		return Descriptors{}, fmt.Errorf("%w: missing required \"ingestor\" key", ingesterr.ErrConfig)
	}

	ingDesc, err := parseIngestor(blob.Ingestor, profiling)
	if err != nil {
		return Descriptors{}, err
	}

	out := Descriptors{Ingestor: ingDesc, QueueSize: defaultQueueSize}
	if blob.Filter != nil {
		filterCfg, queueSize, err := parseFilter(blob.Filter)
		if err != nil {
			return Descriptors{}, err
		}
		out.Filter = filterCfg
		out.HasFilter = true
		out.QueueSize = queueSize
	}
	return out, nil
}

func parseIngestor(m map[string]any, profiling bool) (ingestor.Descriptor, error) {
	videoSrc, _ := m["video_src"].(string)
	if videoSrc == "" {
		return ingestor.Descriptor{}, fmt.Errorf("%w: ingestor.video_src is required", ingesterr.ErrConfig)
	}
	desc := ingestor.Descriptor{VideoSrc: videoSrc, Profiling: profiling}

	if pi, ok := m["poll_interval"].(float64); ok {
		desc.PollInterval = time.Duration(pi * float64(time.Second))
	}

	if lv, ok := m["loop_video"].(string); ok {
		switch lv {
		case "true":
			desc.Loop = ingestor.LoopTrue
		case "false":
			desc.Loop = ingestor.LoopFalse
		default:
			return ingestor.Descriptor{}, fmt.Errorf("%w: ingestor.loop_video must be \"true\" or \"false\", got %q", ingesterr.ErrConfig, lv)
		}
	}

	if enc, ok := m["encoding"].(map[string]any); ok {
		encType, _ := enc["type"].(string)
		level, _ := enc["level"].(float64)
		if encType == "" {
			return ingestor.Descriptor{}, fmt.Errorf("%w: ingestor.encoding.type is required when encoding is set", ingesterr.ErrConfig)
		}
		desc.HasEncoding = true
		desc.EncodingType = encType
		desc.EncodingLevel = int(level)
	}

	if res, ok := m["resolution"].(string); ok {
		desc.Resolution = res
	}
	return desc, nil
}

func parseFilter(m map[string]any) (filter.Config, int, error) {
	name, _ := m["name"].(string)
	if name == "" {
		return filter.Config{}, 0, fmt.Errorf("%w: filter.name is required when filter is configured", ingesterr.ErrConfig)
	}

	queueSizeF, ok := m["queue_size"].(float64)
	queueSize := int(queueSizeF)
	if !ok || queueSize < 1 {
		return filter.Config{}, 0, fmt.Errorf("%w: filter.queue_size must be an integer >= 1", ingesterr.ErrConfig)
	}

	trainingMode, _ := m["training_mode"].(bool)

	extra := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "name", "queue_size", "training_mode":
			continue
		}
		extra[k] = v
	}

	return filter.Config{Name: name, TrainingMode: trainingMode, Extra: extra}, queueSize, nil
}
