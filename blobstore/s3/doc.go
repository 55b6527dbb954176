// Package s3 stores segments in Amazon S3.
//
//	store, err := s3.New(ctx, "index-bucket", s3.WithPrefix("segments/"))
//
// Blobs are read with ranged GETs and written with streaming multipart
// uploads; small blobs written with Put carry a CRC32C checksum.
package s3
