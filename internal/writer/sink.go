package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"l2writer/internal/config"
	"l2writer/internal/fileutil"
)

const objectScheme = "s3://"

// Sink stores an encoded output file.
type Sink interface {
	Put(ctx context.Context, filename, contentType string, write func(io.Writer) error) error
}

// LocalSink writes files on the local filesystem.
type LocalSink struct{}

// Put writes filename atomically.
func (LocalSink) Put(_ context.Context, filename, _ string, write func(io.Writer) error) error {
	return fileutil.WriteAtomic(filename, 0o644, write)
}

// ObjectSink uploads s3://bucket/key filenames to an S3-compatible object store.
type ObjectSink struct {
	client *minio.Client
	region string

	mu      sync.Mutex
	buckets map[string]bool
}

// NewObjectSink builds a minio client for the [object_store] section.
func NewObjectSink(cfg config.ObjectStore) (*ObjectSink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("object store access key and secret key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &ObjectSink{client: client, region: region, buckets: make(map[string]bool)}, nil
}

// Ping checks that the endpoint answers and accepts the credentials.
func (s *ObjectSink) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	return nil
}

// Put encodes into memory and uploads the object.
func (s *ObjectSink) Put(ctx context.Context, filename, contentType string, write func(io.Writer) error) error {
	bucket, key, err := SplitObjectURL(filename)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *ObjectSink) ensureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.buckets[bucket] = true
	return nil
}

// IsObjectURL reports whether filename targets the object store.
func IsObjectURL(filename string) bool {
	return strings.HasPrefix(filename, objectScheme)
}

// SplitObjectURL parses s3://bucket/key.
func SplitObjectURL(filename string) (string, string, error) {
	rest, ok := strings.CutPrefix(filename, objectScheme)
	if !ok {
		return "", "", fmt.Errorf("not an object url: %q", filename)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("object url %q requires bucket and key", filename)
	}
	return bucket, key, nil
}
