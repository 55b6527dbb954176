// Package docmapper maps the global doc ids of a merge plan to their
// location in the target segments.
//
// Within each target segment the new local ids are dense, zero based and
// preserve the relative order of the old global ids. The merge heap relies
// on that order to emit documents in target order.
package docmapper
