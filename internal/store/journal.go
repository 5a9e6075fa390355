package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"pairflow-go/internal/market"
)

// TickJournal appends normalized ticks as JSON lines for offline inspection.
// Writes are best-effort; the journal never blocks or fails the tick path.
type TickJournal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewTickJournal creates/opens the target file and returns a journal.
func NewTickJournal(path string) (*TickJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &TickJournal{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single tick to the underlying JSONL file.
func (j *TickJournal) Record(tk market.Tick) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(tk)
}

// Close flushes and closes the file handle.
func (j *TickJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
