package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig carries the connection settings for an S3-compatible
// object store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore keeps the blob as a single JSON object in a bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	object string
}

// NewObjectStore connects to the object store and ensures the bucket exists.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig, contextKey string) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		object: strings.TrimSuffix(contextKey, "/") + "/blob.json",
	}, nil
}

// Load reads the blob object, returning EmptyBlob when it has never been
// written.
func (s *ObjectStore) Load(ctx context.Context) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("load blob object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return EmptyBlob, nil
		}
		return "", fmt.Errorf("read blob object: %w", err)
	}
	if len(data) == 0 {
		return EmptyBlob, nil
	}
	return string(data), nil
}

// Save overwrites the blob object.
func (s *ObjectStore) Save(ctx context.Context, blob string) error {
	reader := bytes.NewReader([]byte(blob))
	_, err := s.client.PutObject(ctx, s.bucket, s.object, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("save blob object: %w", err)
	}
	return nil
}
