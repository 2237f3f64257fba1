// Package blob stages uploaded knowledge-base files in Azure Blob Storage
// before they are ingested, so a failed ingest can be retried from the
// original upload without asking the client to resend it.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// defaultContainer is used when AZURE_STORAGE_CONTAINER is unset.
const defaultContainer = "askhr-uploads"

// Stage wraps an Azure Blob Storage container used as the upload staging
// area. Safe for concurrent use.
type Stage struct {
	client    *azblob.Client
	container string
}

// NewFromEnv constructs a Stage from environment variables.
// AZURE_STORAGE_CONNECTION_STRING selects authenticated access;
// AZURE_STORAGE_ACCOUNT_URL falls back to anonymous access for local
// emulators. Returns (nil, nil) when neither is set, which disables staging.
func NewFromEnv() (*Stage, error) {
	container := os.Getenv("AZURE_STORAGE_CONTAINER")
	if container == "" {
		container = defaultContainer
	}

	if connStr := os.Getenv("AZURE_STORAGE_CONNECTION_STRING"); connStr != "" {
		client, err := azblob.NewClientFromConnectionString(connStr, nil)
		if err != nil {
			return nil, fmt.Errorf("blob: create client from connection string: %w", err)
		}
		return &Stage{client: client, container: container}, nil
	}

	if accountURL := os.Getenv("AZURE_STORAGE_ACCOUNT_URL"); accountURL != "" {
		client, err := azblob.NewClientWithNoCredential(accountURL, nil)
		if err != nil {
			return nil, fmt.Errorf("blob: create client for %s: %w", accountURL, err)
		}
		return &Stage{client: client, container: container}, nil
	}

	return nil, nil
}

// Put uploads a staged file under the given name, overwriting any previous
// upload with that name.
func (s *Stage) Put(ctx context.Context, name string, r io.Reader) error {
	if _, err := s.client.UploadStream(ctx, s.container, name, r, nil); err != nil {
		return fmt.Errorf("blob: upload %s: %w", name, err)
	}
	return nil
}

// Get streams a staged file back. The caller must close the returned reader.
func (s *Stage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: download %s: %w", name, err)
	}
	return resp.Body, nil
}

// List returns the names of staged files whose name starts with prefix.
// An empty prefix lists the whole container.
func (s *Stage) List(ctx context.Context, prefix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var names []string
	pager := s.client.NewListBlobsFlatPager(s.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("blob: list %q: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

// Delete removes a staged file once its ingest has succeeded.
func (s *Stage) Delete(ctx context.Context, name string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, name, nil); err != nil {
		return fmt.Errorf("blob: delete %s: %w", name, err)
	}
	return nil
}
