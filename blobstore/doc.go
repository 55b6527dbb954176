// Package blobstore stores segment files as named immutable blobs.
//
// Source segments are read through a [BlobStore] and merge output is written
// through the same interface, so segments may live on local disk, in S3 or
// in MinIO. Names use forward slashes; [Dir] scopes a store to one segment
// or index directory.
//
// # Implementations
//
//   - [LocalStore]: local file system, mmap reads, atomic create via rename
//   - [MemoryStore]: in-memory, for tests
//   - [CachingStore]: block cache in front of a remote store
//   - s3.Store and minio.Store in the sub-packages
//
// Readers that need an io.ReaderAt (the block-compressed file format, the
// offset decoder) wrap a blob with [NewReaderAt].
package blobstore
