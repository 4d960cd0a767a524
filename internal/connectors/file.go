package connectors

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads documents from the local filesystem below Root.
type FileSource struct {
	Root string
}

func (f *FileSource) Scheme() string { return "file" }

func (f *FileSource) Open(_ context.Context, _, key string) (io.ReadCloser, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	path := filepath.Clean(key)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s is outside %s", ErrInvalidURI, path, root)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return file, nil
}

func (f *FileSource) Close() error { return nil }
