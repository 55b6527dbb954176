// Package hash provides the hashing utilities used by the on-disk formats.
//
// # CRC32-Castagnoli (CRC32C)
//
// Checksums of persisted metadata (doc mapper resources, compressed file
// footers) use CRC32-Castagnoli, which Go accelerates with SSE4.2 / ARM CRC:
//
//	checksum := hash.CRC32C(data)
//
// # Content hashing
//
// Variable-length values are interned by their xxhash64 digest when a column
// is written with uniq encoding:
//
//	key := hash.Content(value)
package hash
