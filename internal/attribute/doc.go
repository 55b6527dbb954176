// Package attribute merges attribute columns.
//
// Single-value numeric attributes are fixed-width columns, optionally
// equal-value compressed, optionally nullable and optionally split into
// slices written by independent mergers. Multi-value and string attributes
// are variable-length columns merged by varlen.Merger.
//
// Updates to sealed segments live in patch files named <src>_<dest>.patch
// in the attribute directory of the segment that issued them (src); dest
// is the segment holding the updated documents. A merge applies the
// patches of its source segments and carries forward, as one deduplicated
// file per destination, the patches its sources issued for segments that
// are not merged.
package attribute
