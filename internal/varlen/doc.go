// Package varlen stores variable-length values per document as a data file
// plus an offset file, and merges such columns.
//
// Offset file:
//
//	[Magic uint32][Version uint8][Width uint8][Flags uint8][pad uint8][Count uint64]
//	Count offsets, either Width-byte little endian or an equal-value
//	compressed stream (Flags bit 0). Bit 1 marks a trailing guard offset
//	holding the data length.
//
// Data file items are [uvarint len][bytes] when item lengths are appended,
// the raw bytes otherwise. The data file is optionally written through the
// block-compressed file format.
//
// With uniq encode a writer interns values by content hash, so identical
// values share one physical item and offsets are no longer monotonic.
package varlen
