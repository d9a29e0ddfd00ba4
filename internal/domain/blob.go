package domain

import "context"

// BlobWriter writes cold-storage objects (JSONL archives of purged rows).
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
