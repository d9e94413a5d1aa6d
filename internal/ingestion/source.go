package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
)

// DocumentSource lists and fetches raw documents per bucket. The object
// store behind it is external; batch ingestion only needs these two
// operations.
type DocumentSource interface {
	// ListDocuments returns the document names in a bucket, filtered to
	// recognized extensions.
	ListDocuments(ctx context.Context, b bucket.Bucket) ([]string, error)

	// FetchDocument returns the raw bytes of one document.
	FetchDocument(ctx context.Context, b bucket.Bucket, name string) ([]byte, error)
}

// FSSource serves documents from a local directory tree with one
// subdirectory per bucket. Used by the batch CLI and in tests.
type FSSource struct {
	root string
}

// NewFSSource creates a filesystem-backed document source.
func NewFSSource(root string) *FSSource {
	return &FSSource{root: root}
}

// ListDocuments returns the recognized documents under the bucket
// directory in stable name order. A missing directory is an empty
// bucket, not an error.
func (s *FSSource) ListDocuments(_ context.Context, b bucket.Bucket) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, b.String()))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket %s; %w", b, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !bucket.RecognizedExtension(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FetchDocument reads one document's bytes.
func (s *FSSource) FetchDocument(_ context.Context, b bucket.Bucket, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, b.String(), name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s; %w", b, name, err)
	}
	return data, nil
}
