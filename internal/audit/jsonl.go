package audit

import (
	"context"
	"fmt"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONLSink appends entries to a newline-delimited JSON file. Writes are
// serialized; the file is opened append-only so concurrent runs against
// the same path cannot interleave partial lines.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLSink opens (or creates) the audit file.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening audit file %s: %v", schemas.ErrAuditPersistence, path, err)
	}
	return &JSONLSink{file: f}, nil
}

// Write encodes one entry as a JSON line.
func (s *JSONLSink) Write(_ context.Context, entry schemas.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding entry %d: %v", schemas.ErrAuditPersistence, entry.Seq, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("%w: writing entry %d: %v", schemas.ErrAuditPersistence, entry.Seq, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
