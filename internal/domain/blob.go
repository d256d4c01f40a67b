package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object in cold storage.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads cold-storage archives.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader reads back cold-storage archives, used by audit tooling to
// replay an archived day's signals and trades.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// BlobDeleter is the narrow delete-only slice of BlobReader, satisfied by
// the same type as BlobReader. Neither archiver depends on it.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver moves signals and trades older than a cutoff into cold storage,
// returning how many records of each kind were archived.
type Archiver interface {
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
	ArchiveSignals(ctx context.Context, before time.Time) (int64, error)
}
