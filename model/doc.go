// Package model defines the identity types shared by the merge packages.
//
// # Identity Types
//
//   - DocID: document identifier. Inside a segment it is the segment-local id;
//     across a merge plan it is the global id (base doc id + local id).
//   - SegmentID: identifier of a source or target segment.
//
// Both types reserve -1 as the invalid sentinel, which a DocMapper returns for
// documents dropped by a merge.
package model
