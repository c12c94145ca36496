package archive

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBackend stores archive blobs as objects in one GCS bucket, under
// prefix.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBackend builds a GCSBackend using application-default credentials.
func NewGCSBackend(ctx context.Context, bucket, prefix string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSBackend{client: client, bucket: bucket, prefix: prefix}, nil
}

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *GCSBackend) Put(ctx context.Context, key string, r io.Reader) error {
	w := b.client.Bucket(b.bucket).Object(b.objectKey(key)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *GCSBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.client.Bucket(b.bucket).Object(b.objectKey(key)).NewReader(ctx)
}
