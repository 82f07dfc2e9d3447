package bus

import (
	"context"
	"testing"
	"time"
)

func TestChannelBusDeliversInOrder(t *testing.T) {
	b := NewChannelBus(4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, "topic", []byte("meta"), []byte{byte(i)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case msg := <-b.Messages():
			if len(msg.Payload) != 1 || msg.Payload[0] != byte(i) {
				t.Fatalf("expected payload %d, got %v", i, msg.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestChannelBusPublishAfterCloseFails(t *testing.T) {
	b := NewChannelBus(1)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close should be idempotent, got: %v", err)
	}
	if err := b.Publish(context.Background(), "t", nil, nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
