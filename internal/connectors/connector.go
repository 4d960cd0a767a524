// Package connectors reads extracted document text from object storage.
// A document is addressed by URI: s3://bucket/key, gs://bucket/key,
// azblob://container/blob or file:///path.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	ErrInvalidURI        = errors.New("invalid storage uri")
	ErrTooLarge          = errors.New("object exceeds size limit")
	ErrNotText           = errors.New("object is not utf-8 text")
)

// DefaultMaxBytes caps how much text is read from a single object.
const DefaultMaxBytes = 5 * 1024 * 1024

// Source opens objects from one storage provider.
type Source interface {
	// Scheme is the URI scheme the source serves, e.g. "s3".
	Scheme() string

	// Open returns the object's content.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Close releases any resources held by the source
	Close() error
}

// Location is a parsed storage URI.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseURI splits uri into scheme, bucket and key. For file URIs the bucket
// is empty and the key is the absolute path.
func ParseURI(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme == "" {
		return Location{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidURI, uri)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "file" {
		if u.Path == "" {
			return Location{}, fmt.Errorf("%w: missing path in %q", ErrInvalidURI, uri)
		}
		return Location{Scheme: scheme, Key: u.Path}, nil
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidURI, uri)
	}
	return Location{Scheme: scheme, Bucket: u.Host, Key: key}, nil
}

// Registry routes URIs to the Source registered for their scheme.
type Registry struct {
	mu       sync.RWMutex
	sources  map[string]Source
	maxBytes int64
}

func NewRegistry(maxBytes int64) *Registry {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Registry{sources: make(map[string]Source), maxBytes: maxBytes}
}

func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Scheme()] = src
}

// Schemes lists the registered schemes.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for s := range r.sources {
		out = append(out, s)
	}
	return out
}

// FetchText reads the object at uri as UTF-8 text.
func (r *Registry) FetchText(ctx context.Context, uri string) (string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	src, ok := r.sources[loc.Scheme]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, loc.Scheme)
	}

	rc, err := src.Open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", loc, err)
	}
	if int64(len(data)) > r.maxBytes {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, loc, r.maxBytes)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrNotText, loc)
	}
	return string(data), nil
}

// Close closes every registered source.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, src := range r.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
