package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// File appends one JSON line per attempt to a local file.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Attempt(_ context.Context, _ string, payload domain.Payload) domain.DestinationResult {
	body, err := encode(payload)
	if err != nil {
		return domain.Failure(err.Error())
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return failuref("mkdir: %v", err)
	}

	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return failuref("open: %v", err)
	}

	if _, err := fh.Write(append(body, '\n')); err != nil {
		fh.Close()
		return failuref("write: %v", err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return failuref("sync: %v", err)
	}
	if err := fh.Close(); err != nil {
		return failuref("close: %v", err)
	}

	return domain.Success(fmt.Sprintf("written to %s", f.path))
}
