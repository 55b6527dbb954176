// Package mmap maps segment files read-only into memory.
//
// Merges read source columns front to back, so local blobs are mapped and
// advised [AccessSequential]; random lookups during uniq merges still hit the
// page cache. On Unix mapping uses mmap(2) and madvise(2). On Windows it uses
// CreateFileMapping/MapViewOfFile and advice is ignored.
//
// A [Mapping] may be read concurrently. Close is idempotent; slices returned
// by Bytes or Slice must not be used after it.
package mmap
