package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver copies closed positions to cold storage. Rows stay in the
// database; the archive is an export, not a move.
type Archiver interface {
	ArchiveClosed(ctx context.Context, since, until time.Time) (int64, error)
}
