package bus

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/factoryedge/videoingest/internal/ingest/servicelog"
)

// Client abstracts http.Client.Do, the same seam the teacher's backend
// package uses so a request-logging wrapper can sit in front of the
// transport without touching call sites.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// debugClient logs every outgoing request at debug level: method, URL,
// and payload size, without buffering the body (the payload can be a
// full-size encoded frame).
type debugClient struct {
	logger servicelog.Logger
	client Client
}

func (c debugClient) Do(req *http.Request) (*http.Response, error) {
	logger := c.logger.With(
		servicelog.String("method", req.Method),
		servicelog.String("url", req.URL.String()),
		servicelog.Int64("content_length", req.ContentLength),
	)
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Debug("HTTP request failed", servicelog.Error(err))
	} else {
		logger.Debug("HTTP request", servicelog.Int("status", resp.StatusCode))
	}
	return resp, err
}

// HTTPBus posts each record as a single request to url, carrying the
// topic and metadata as headers and the encoded/raw buffer as the body.
// It satisfies Bus.
type HTTPBus struct {
	url    string
	client Client
	closed int32
}

// NewHTTPBus builds an HTTPBus. logger, when non-nil, wraps every request
// with the debug logging the teacher's HTTP client used.
func NewHTTPBus(url string, logger servicelog.Logger) *HTTPBus {
	var client Client = http.DefaultClient
	if logger != nil {
		client = debugClient{logger: logger, client: http.DefaultClient}
	}
	return &HTTPBus{url: url, client: client}
}

func (b *HTTPBus) Publish(ctx context.Context, topic string, metadata, payload []byte) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return ErrClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("X-Ingest-Topic", topic)
	req.Header.Set("X-Ingest-Metadata", string(metadata))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bus: publish returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *HTTPBus) Close() error {
	atomic.StoreInt32(&b.closed, 1)
	return nil
}
