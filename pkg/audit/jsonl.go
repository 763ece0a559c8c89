package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// FileSink writes records as JSON lines to a writer. It is the lightweight
// sink for CLI runs and debugging; durable queryable stores live in
// pkg/store.
type FileSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileSink creates a FileSink. A nil writer falls back to os.Stdout.
func NewFileSink(w io.Writer) *FileSink {
	if w == nil {
		w = os.Stdout
	}
	return &FileSink{w: w}
}

// LogAudit writes one record as a single line. Writes are serialized.
func (s *FileSink) LogAudit(_ context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(b, '\n'))
	return err
}
