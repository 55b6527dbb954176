package hash

import "github.com/cespare/xxhash/v2"

// Content returns the 64-bit content hash used as the deduplication key for
// variable-length values. Equal byte sequences always hash equal.
func Content(data []byte) uint64 {
	return xxhash.Sum64(data)
}
