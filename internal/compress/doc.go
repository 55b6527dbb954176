// Package compress implements the named block compressors used for column data
// files and the block-compressed file format built on them.
//
// Supported compressor names are "snappy", "lz4", "lz4hc", "zlib" and "zstd".
// The empty name means no compression.
//
// A compressed file is a sequence of independently compressed blocks of a fixed
// uncompressed size (a power of two), followed by a footer indexing the blocks.
// Readers address the file by uncompressed offsets, so column offsets stay
// independent of the compressor in use.
package compress
