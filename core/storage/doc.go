// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client to provide a simplified read-only interface
// over the bucket that holds the practice's exported insurance files. The
// corpus scanner in core/corpus consumes it when configured with a bucket
// backend instead of a local directory.
//
// # Client Interface
//
// The Client interface abstracts the underlying storage provider, making it
// easier to mock storage interactions for unit testing (as seen in
// core/storage/mocks).
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	exists, err := client.BucketExists(ctx, "insurance-files")
package storage
