// Package frame defines the record that flows through the ingestion
// pipeline: a pixel buffer plus its per-frame metadata.
package frame

import "time"

// NowMillis is the profiling clock every stage stamps ts_vi_* keys with.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Reserved metadata keys, per the data model's reserved-key list.
const (
	KeyEncodingType  = "encoding_type"
	KeyEncodingLevel = "encoding_level"
	KeyResolution    = "resolution"
	KeyHeight        = "height"
	KeyWidth         = "width"
	KeyChannel       = "channel"
	KeyImgHandle     = "img_handle"
	KeyUserData      = "user_data"

	KeyTsEntry       = "ts_vi_entry"
	KeyTsFilterEntry = "ts_vi_filter_entry"
	KeyTsQueueWait   = "ts_vi_queue_wait"
	KeyTsEncodeStart = "ts_vi_encode_start"
	KeyTsEncodeEnd   = "ts_vi_encode_end"
	KeyTsExit        = "ts_vi_exit"
)

// Metadata is a mapping from string keys to scalar values (strings, ints,
// floats). It is never shared-mutably between stages: Clone before handing
// a record to the next stage if the current stage still needs to read it.
type Metadata map[string]any

// Clone returns a shallow copy. Values are scalars, so a shallow copy is a
// deep copy for every value this pipeline ever stores.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Int reads an integer-valued key, accepting both int and float64 (the
// shape JSON decoding produces).
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// Buffer is a raw pixel buffer with a known shape, or a compressed byte
// sequence once encoded (Height/Width/Channels are then stale and unused).
type Buffer struct {
	Pix      []byte
	Height   int
	Width    int
	Channels int
}

// Normalize applies the data model's two-dimensional shape rule: a buffer
// described as (height, width) with no channel dimension is promoted to
// channels=3 nominally, without any pixel conversion. This is preserved
// because the spec treats it as binding behavior, though REDESIGN FLAGS
// calls it "semantically dubious".
func (b Buffer) Normalize() Buffer {
	if b.Channels == 0 {
		b.Channels = 3
	}
	return b
}

// Size is the number of bytes a Channels-deep Height x Width raw buffer
// occupies. Meaningless once the buffer has been encoded.
func (b Buffer) Size() int {
	return b.Height * b.Width * b.Channels
}

// Record is the (metadata, frame_buffer) pair that travels through every
// queue in the pipeline. Ownership transfers to the consuming stage once a
// Record is handed off; the producer must not mutate it afterwards.
type Record struct {
	Metadata Metadata
	Buffer   Buffer
}
