package output

import (
	"encoding/json"
	"fmt"
	"io"
)

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}

// structured implements the json/ndjson behavior shared by the console, emit
// and file sinks:
//   - json: aggregates Result values and writes a single array on close
//   - ndjson: streams Event values (one JSON object per line), flushing each
type structured struct {
	w       io.Writer
	format  string
	results []Result
}

func newStructured(w io.Writer, format string) (*structured, error) {
	if w == nil {
		return nil, fmt.Errorf("writer must not be nil")
	}
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return &structured{w: w, format: format, results: []Result{}}, nil
}

func (s *structured) write(v any) error {
	if s.format == "json" {
		if r, ok := v.(Result); ok {
			s.results = append(s.results, r)
		}
		// Lifecycle events are not part of the aggregate.
		return nil
	}

	var e Event
	switch t := v.(type) {
	case Event:
		e = t
	case Result:
		e = eventFromResult(t)
	default:
		return nil
	}
	if err := json.NewEncoder(s.w).Encode(e); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}

func (s *structured) close() error {
	if s.format != "json" {
		return nil
	}
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.results); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}
