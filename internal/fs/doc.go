// Package fs abstracts the local file system used for segment output.
//
// Production code uses [Default]. Tests wrap it in a [FaultyFS] to fail
// writes, syncs, closes or opens of selected files, which is how merge
// failure paths (partially written targets, close-on-failure) are exercised.
//
// Operations take no context.Context: local file calls cannot be interrupted
// mid-syscall. Remote stores go through package blobstore instead.
package fs
