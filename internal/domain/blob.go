package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// RoundArchive is the archived form of one settled round.
type RoundArchive struct {
	Round Round     `json:"round"`
	Bets  []BetInfo `json:"bets"`
}

// Archiver copies finished rounds to cold storage.
type Archiver interface {
	// ArchiveRounds archives every finished round with from <= epoch <= to
	// that is not archived yet and returns how many were written.
	ArchiveRounds(ctx context.Context, from, to int64) (int64, error)
}
