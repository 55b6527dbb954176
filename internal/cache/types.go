package cache

import "context"

// Key identifies one block of one blob.
type Key struct {
	Blob  string
	Block uint64
}

// BlockCache stores immutable blocks. Returned slices are read-only.
type BlockCache interface {
	Get(ctx context.Context, key Key) ([]byte, bool)
	Set(ctx context.Context, key Key, b []byte)
	// InvalidateBlob drops every block of blob.
	InvalidateBlob(blob string)
	Stats() (hits, misses int64)
}
