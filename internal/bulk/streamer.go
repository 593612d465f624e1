package bulk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
)

// Item is one unit of work in a bulk operation.
type Item interface {
	// Key identifies the item in per-item error reports.
	Key() string

	// Process performs the item's remote work. A returned error fails
	// the whole item; warnings report sub-entity failures that leave the
	// parent standing.
	Process(ctx context.Context) (Outcome, error)
}

// Outcome is a successfully processed item's result.
type Outcome struct {
	// CreatedID is the remote id of the created parent entity.
	CreatedID string

	// Warnings report sub-entity failures (e.g. a variant that could not
	// be created). The parent still counts as imported.
	Warnings []pipeline.ItemError
}

// Streamer processes items one at a time, continues past per-item
// failures, and emits a progress event after every item plus one
// terminal complete event. Items run serially: the remote rate budget
// makes parallelism counter-productive.
type Streamer struct {
	sink   Sink
	logger *slog.Logger
}

// NewStreamer creates a streamer emitting to the given sink.
func NewStreamer(sink Sink, logger *slog.Logger) *Streamer {
	if sink == nil {
		sink = discardSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{sink: sink, logger: logger}
}

// Run processes all items and returns the terminal event it emitted.
// The operation counts as successful when at least one item imported;
// per-item reasons ride along either way.
func (s *Streamer) Run(ctx context.Context, items []Item) (CompleteEvent, error) {
	total := len(items)
	complete := CompleteEvent{Type: TypeComplete, Total: total}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return complete, err
		}

		outcome, err := item.Process(ctx)
		if err != nil {
			complete.FailedCount++
			complete.ItemErrors = append(complete.ItemErrors, pipeline.ItemError{
				Key:    item.Key(),
				Reason: err.Error(),
			})
			s.logger.Warn("bulk item failed", "key", item.Key(), "error", err)
		} else {
			complete.ImportedCount++
			if outcome.CreatedID != "" {
				complete.CreatedIDs = append(complete.CreatedIDs, outcome.CreatedID)
			}
			complete.ItemErrors = append(complete.ItemErrors, outcome.Warnings...)
		}

		progress := ProgressEvent{Type: TypeProgress, Processed: i + 1, Total: total}
		if err := s.sink.Emit(ctx, progress); err != nil {
			return complete, fmt.Errorf("failed to emit progress: %w", err)
		}
	}

	complete.Success = complete.ImportedCount > 0
	complete.Message = fmt.Sprintf("imported %d of %d items", complete.ImportedCount, total)
	if complete.FailedCount > 0 {
		complete.Message = fmt.Sprintf("%s (%d failed)", complete.Message, complete.FailedCount)
	}

	if err := s.sink.Emit(ctx, complete); err != nil {
		return complete, fmt.Errorf("failed to emit terminal event: %w", err)
	}
	return complete, nil
}
