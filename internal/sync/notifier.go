package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/bookbridge/searchd/pkg/kafka"
)

// ChangeEvent is the payload published for every document whose index
// entry changed. Downstream consumers (other replicas' caches, analytics)
// treat it as a hint; correctness never depends on delivery.
type ChangeEvent struct {
	DocumentID string    `json:"document_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher is the producer surface the notifier needs. kafka.Producer
// implements it.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Notifier batches change events and publishes them to Kafka from a
// background goroutine so the sync loop never blocks on the broker. When
// the buffer is full events are dropped, counted, and logged.
type Notifier struct {
	producer     EventPublisher
	events       chan ChangeEvent
	flushEntries int
	flushEvery   time.Duration
	dropped      int64
	logger       *slog.Logger
}

// NewNotifier creates a Notifier with the given buffer and flush bounds.
func NewNotifier(producer EventPublisher, bufferSize, flushEntries int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if flushEntries <= 0 {
		flushEntries = 100
	}
	return &Notifier{
		producer:     producer,
		events:       make(chan ChangeEvent, bufferSize),
		flushEntries: flushEntries,
		flushEvery:   time.Second,
		logger:       slog.Default().With("component", "change-notifier"),
	}
}

// DocumentsChanged enqueues one event per document ID. Non-blocking.
func (n *Notifier) DocumentsChanged(ids []string) {
	now := time.Now().UTC()
	for _, id := range ids {
		select {
		case n.events <- ChangeEvent{DocumentID: id, OccurredAt: now}:
		default:
			n.dropped++
			if n.dropped%1000 == 1 {
				n.logger.Warn("notify buffer full, dropping events", "dropped_total", n.dropped)
			}
		}
	}
}

// Run drains the event channel, flushing on size or interval, until ctx
// is cancelled. The final partial batch is flushed before returning.
func (n *Notifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.flushEvery)
	defer ticker.Stop()

	batch := make([]ChangeEvent, 0, n.flushEntries)
	for {
		select {
		case <-ctx.Done():
			n.flush(batch)
			return ctx.Err()
		case ev := <-n.events:
			batch = append(batch, ev)
			if len(batch) >= n.flushEntries {
				n.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				n.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (n *Notifier) flush(batch []ChangeEvent) {
	if len(batch) == 0 {
		return
	}
	// The producer serialises Event.Value itself; handing it anything
	// pre-marshalled would double-encode.
	events := make([]kafka.Event, 0, len(batch))
	for _, ev := range batch {
		events = append(events, kafka.Event{Key: ev.DocumentID, Value: ev})
	}
	// Publishing runs with its own deadline: the caller's ctx may
	// already be cancelled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.producer.PublishBatch(ctx, events); err != nil {
		n.logger.Warn("change event publish failed", "events", len(events), "error", err)
	}
}
