// Package cache holds immutable blocks of remote segment files in memory.
//
// Merges read every source column front to back and re-read offsets during
// uniq merges, so remote blobs are split into fixed-size blocks and kept in
// an LRU bounded by bytes. Reservations are mirrored into a
// [resource.Controller] when one is supplied, so cached blocks count against
// the same memory limit as the mergers themselves.
package cache
