// Package bus is the Publisher's external message bus client: a tiny
// interface the Publisher hands finalized (metadata, payload) pairs to,
// plus an in-process implementation for tests and an HTTP implementation
// for a real deployment.
package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned by Publish once Close has been called. The
// Publisher treats this as the bus being unusable and exits rather than
// logging-and-continuing like an ordinary PublishError.
var ErrClosed = errors.New("bus: closed")

// Bus is the contract the Publisher publishes through. Publish must
// preserve call order: the Publisher relies on it to not reorder frames
// from a single source.
type Bus interface {
	Publish(ctx context.Context, topic string, metadata []byte, payload []byte) error
	Close() error
}
