package bulk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoTerminalEvent is returned when a stream ends without a well-formed
// complete event. Callers must treat the operation as failed rather than
// silently reporting success.
var ErrNoTerminalEvent = errors.New("no terminal event received")

// Decode consumes an NDJSON event stream incrementally. onProgress is
// invoked for each progress event (nil is allowed); the terminal complete
// event is returned once the stream ends. Partial trailing lines are
// buffered until more bytes arrive, and a final line without a newline is
// still processed at EOF.
func Decode(r io.Reader, onProgress func(ProgressEvent)) (CompleteEvent, error) {
	var (
		pending  []byte
		complete CompleteEvent
		sawFinal bool
		chunk    = make([]byte, 4096)
	)

	handleLine := func(line []byte) error {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return nil
		}

		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &tag); err != nil {
			return fmt.Errorf("malformed stream record: %w", err)
		}

		switch tag.Type {
		case TypeProgress:
			if onProgress != nil {
				var ev ProgressEvent
				if err := json.Unmarshal(line, &ev); err != nil {
					return fmt.Errorf("malformed progress record: %w", err)
				}
				onProgress(ev)
			}
		case TypeComplete:
			if err := json.Unmarshal(line, &complete); err != nil {
				return fmt.Errorf("malformed terminal record: %w", err)
			}
			sawFinal = true
		}
		return nil
	}

	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := pending[:idx]
				pending = pending[idx+1:]
				if err := handleLine(line); err != nil {
					return CompleteEvent{}, err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return CompleteEvent{}, fmt.Errorf("stream read failed: %w", readErr)
		}
	}

	// Tolerate a final record without a trailing newline.
	if err := handleLine(pending); err != nil {
		return CompleteEvent{}, err
	}

	if !sawFinal {
		return CompleteEvent{}, ErrNoTerminalEvent
	}
	return complete, nil
}
