// Package ingesterr holds the pipeline's error taxonomy: a small set of
// string-backed sentinel errors that let callers classify a failure with
// errors.Is instead of parsing a message, plus the three wrapping types that
// carry a per-frame cause (FilterError, EncodeError, PublishError).
package ingesterr

type sentinel string

func (e sentinel) Error() string { return string(e) }

const (
	// ErrConfig marks a missing/invalid required field, an unknown filter
	// name, or more than one publish topic. Fatal at startup; during a
	// reconfigure, the pipeline keeps running on the prior config.
	ErrConfig = sentinel("ingest: config error")

	// ErrSourceTransient marks a single failed read, counted toward
	// MAX_FAIL and then MAX_RETRY. Recoverable on its own.
	ErrSourceTransient = sentinel("ingest: transient source read failure")

	// ErrSourceFatal marks MAX_RETRY exhaustion: fatal to the Ingestor.
	ErrSourceFatal = sentinel("ingest: source retry budget exhausted")

	// ErrEndOfStream marks a clean, non-looping end of stream.
	ErrEndOfStream = sentinel("ingest: end of stream")
)

// FilterError wraps a panic or error raised from a filter's per-frame
// logic. The offending frame is dropped; the filter worker continues.
type FilterError struct {
	Filter string
	Err    error
}

func (e *FilterError) Error() string {
	return "ingest: filter " + e.Filter + ": " + e.Err.Error()
}

func (e *FilterError) Unwrap() error { return e.Err }

// EncodeError marks an out-of-range encode level or unsupported encoding
// type. The record is still published, with the buffer left unencoded.
type EncodeError struct {
	Type  string
	Level int
	Err   error
}

func (e *EncodeError) Error() string {
	return "ingest: encode " + e.Type + ": " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error { return e.Err }

// PublishError wraps a bus Publish failure. The record is dropped and the
// worker continues, unless the bus itself reports it is unusable (Closed),
// in which case the Publisher stage exits.
type PublishError struct {
	Topic  string
	Closed bool
	Err    error
}

func (e *PublishError) Error() string {
	return "ingest: publish to " + e.Topic + ": " + e.Err.Error()
}

func (e *PublishError) Unwrap() error { return e.Err }
