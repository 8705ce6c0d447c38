package output

import (
	"fmt"
	"io"
	"sync"
)

// EmitSink writes an additional structured stream (typically stdout) next to
// the console output.
type EmitSink struct {
	mu  sync.Mutex
	enc *structured
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	enc, err := newStructured(w, format)
	if err != nil {
		return nil, fmt.Errorf("emit sink: %w", err)
	}
	return &EmitSink{enc: enc}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.write(v)
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.close()
}
