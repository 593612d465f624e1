// Package bulk implements the streaming protocol for long-running
// many-item operations: newline-delimited JSON progress events over a
// continuously flushed stream, closed by a single terminal event.
package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
)

// Event type tags.
const (
	TypeProgress = "progress"
	TypeComplete = "complete"
)

// ProgressEvent is emitted after every processed item.
type ProgressEvent struct {
	Type      string `json:"type"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// CompleteEvent is the terminal, authoritative record of a bulk
// operation. It is always the last event on the stream.
type CompleteEvent struct {
	Type          string               `json:"type"`
	Success       bool                 `json:"success"`
	ImportedCount int                  `json:"importedCount"`
	FailedCount   int                  `json:"failedCount"`
	Total         int                  `json:"total"`
	CreatedIDs    []string             `json:"createdIds,omitempty"`
	ItemErrors    []pipeline.ItemError `json:"itemErrors,omitempty"`
	Message       string               `json:"message"`
}

// Sink receives stream events in emission order.
type Sink interface {
	Emit(ctx context.Context, event any) error
}

// WriterSink writes one JSON line per event and flushes after each so
// consumers observe progress incrementally.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps a writer (typically an http.ResponseWriter) as a
// sink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Emit marshals the event, appends a newline, and flushes.
func (s *WriterSink) Emit(_ context.Context, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// discardSink swallows events. Used when a streaming-capable step runs
// in a non-streaming context (full pipeline run, tests).
type discardSink struct{}

func (discardSink) Emit(context.Context, any) error { return nil }

type sinkKey struct{}

// WithSink attaches a sink to the context for the duration of a step.
func WithSink(ctx context.Context, s Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// SinkFrom extracts the sink from the context, defaulting to a discard
// sink so emitting is always safe.
func SinkFrom(ctx context.Context) Sink {
	if s, ok := ctx.Value(sinkKey{}).(Sink); ok && s != nil {
		return s
	}
	return discardSink{}
}
