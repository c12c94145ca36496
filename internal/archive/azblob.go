package archive

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzblobBackend stores archive blobs as block blobs in one Azure Storage
// container.
type AzblobBackend struct {
	client    *azblob.Client
	container string
}

// NewAzblobBackend builds an AzblobBackend from a storage account URL and
// shared key credential.
func NewAzblobBackend(serviceURL string, cred azblob.SharedKeyCredential, container string) (*AzblobBackend, error) {
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, &cred, nil)
	if err != nil {
		return nil, err
	}
	return &AzblobBackend{client: client, container: container}, nil
}

func (b *AzblobBackend) Name() string { return "azblob" }

func (b *AzblobBackend) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = b.client.UploadBuffer(ctx, b.container, key, data, nil)
	return err
}

func (b *AzblobBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
