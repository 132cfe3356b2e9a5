// Package tracing records per-request span trees for the search pipeline.
// The HTTP handler opens a root span keyed by the request ID and each
// pipeline stage hangs a child span off it; the finished tree is emitted
// as structured log lines with slash-joined stage paths.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed operation in a request trace.
type Span struct {
	name     string
	traceID  string
	started  time.Time
	elapsed  time.Duration
	mu       sync.Mutex
	attrs    []any
	children []*Span
}

// StartSpan opens a root span for a request and returns a context
// carrying it.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, started: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChildSpan opens a span nested under the one carried by ctx. With
// no parent in ctx the child stands alone, without a trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{name: name, started: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// SetAttr attaches a key-value pair emitted with the span's log line.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End freezes the span's duration.
func (s *Span) End() {
	s.elapsed = time.Since(s.started)
}

// Log emits the span tree, one debug line per span. Stage paths read like
// "search/execute" so a trace can be reassembled from flat log output.
func (s *Span) Log() {
	s.log(s.name)
}

func (s *Span) log(path string) {
	attrs := []any{
		"trace_id", s.traceID,
		"stage", path,
		"duration_ms", s.elapsed.Milliseconds(),
	}
	s.mu.Lock()
	attrs = append(attrs, s.attrs...)
	children := s.children
	s.mu.Unlock()
	slog.Debug("trace", attrs...)

	for _, child := range children {
		child.log(path + "/" + child.name)
	}
}
