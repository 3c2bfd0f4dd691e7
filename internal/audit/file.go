package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
)

// FileRecorder appends events as JSON lines to a file.
type FileRecorder struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFileRecorder creates the parent directory of path and returns a recorder
// appending to it.
func NewFileRecorder(path string, logger *slog.Logger) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, oops.Code("AUDIT_DIR_FAILED").With("path", path).Wrap(err)
	}
	return &FileRecorder{path: path, logger: logger}, nil
}

func (f *FileRecorder) Record(ctx context.Context, ev Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		f.logger.ErrorContext(ctx, "auth log write failed", "error", err)
		return
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		f.logger.ErrorContext(ctx, "auth log write failed", "error", err, "path", f.path)
		return
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		f.logger.ErrorContext(ctx, "auth log write failed", "error", err, "path", f.path)
	}
}
