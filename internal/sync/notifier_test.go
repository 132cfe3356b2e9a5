package sync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bookbridge/searchd/pkg/kafka"
)

// capturingPublisher records published batches instead of writing to a
// broker.
type capturingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *capturingPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) published() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Event(nil), p.events...)
}

func TestNotifierPublishesDecodableEvents(t *testing.T) {
	pub := &capturingPublisher{}
	n := NewNotifier(pub, 8, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()

	n.DocumentsChanged([]string{"b1", "b2"})

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.published()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("events were not flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	events := pub.published()
	if events[0].Key != "b1" || events[1].Key != "b2" {
		t.Fatalf("wrong partition keys: %q, %q", events[0].Key, events[1].Key)
	}

	// The consumer sees json.Marshal(Event.Value) on the wire; it must
	// decode straight back into a ChangeEvent.
	wire, err := json.Marshal(events[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := kafka.DecodeJSON[ChangeEvent](wire)
	if err != nil {
		t.Fatalf("published event is not consumer-decodable: %v", err)
	}
	if decoded.DocumentID != "b1" {
		t.Errorf("decoded document ID = %q, want b1", decoded.DocumentID)
	}
	if decoded.OccurredAt.IsZero() {
		t.Error("decoded event lost its timestamp")
	}
}

func TestNotifierFlushesFinalBatchOnShutdown(t *testing.T) {
	pub := &capturingPublisher{}
	n := NewNotifier(pub, 8, 100)
	n.flushEvery = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()

	n.DocumentsChanged([]string{"b1"})
	deadline := time.Now().Add(2 * time.Second)
	for len(n.events) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never drained from the buffer")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := len(pub.published()); got != 1 {
		t.Fatalf("published %d events on shutdown, want 1", got)
	}
}
