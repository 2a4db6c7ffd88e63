package corpus

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"clinic-sync/core/storage"
)

// Source lists and reads the files of the insurance archive.
type Source interface {
	// List returns the names of all archive files.
	List(ctx context.Context) ([]string, error)
	// Read returns the raw bytes of one archive file.
	Read(ctx context.Context, name string) ([]byte, error)
}

// NewDirSource reads the archive from a local directory tree.
func NewDirSource(dir, suffix string) Source {
	return &dirSource{dir: dir, suffix: suffix}
}

type dirSource struct {
	dir    string
	suffix string
}

func (s *dirSource) List(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(s.dir); err != nil {
		return nil, fmt.Errorf("corpus: archive directory %s: %w", s.dir, err)
	}

	var names []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), s.suffix) {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: walk archive: %w", err)
	}
	return names, nil
}

func (s *dirSource) Read(ctx context.Context, name string) ([]byte, error) {
	return os.ReadFile(name)
}

// NewBucketSource reads the archive from an object-storage bucket.
func NewBucketSource(client storage.Client, bucket, suffix string) Source {
	return &bucketSource{client: client, bucket: bucket, suffix: suffix}
}

type bucketSource struct {
	client storage.Client
	bucket string
	suffix string
}

func (s *bucketSource) List(ctx context.Context) ([]string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("corpus: check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("corpus: bucket %s does not exist", s.bucket)
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("corpus: list bucket %s: %w", s.bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, s.suffix) {
			names = append(names, obj.Key)
		}
	}
	return names, nil
}

func (s *bucketSource) Read(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
