// Package docmerge drives the merge order of documents and routes them to
// per-target outputs.
package docmerge
