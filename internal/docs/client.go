// Package docs stores checklist evidence documents in object storage. The
// coordination core only ever sees the resulting link; upload mechanics
// stay behind the Store interface.
package docs

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/fieldworks/dispatch/internal/config"
	"github.com/fieldworks/dispatch/internal/retry"
)

// Store uploads a document and returns a stable link to it. The reader
// must be seekable so a failed attempt can be retried from the start.
type Store interface {
	Upload(ctx context.Context, jobID, itemID int64, filename, contentType string, r io.ReadSeeker, size int64) (string, error)
}

// Client is a MinIO-backed document store
type Client struct {
	mc       *minio.Client
	bucket   string
	endpoint *url.URL
}

// NewClient creates a document store client from configuration
func NewClient(cfg config.DocsConfig) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid DOCS_ENDPOINT '%s': %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid DOCS_ENDPOINT scheme '%s': must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid DOCS_ENDPOINT '%s': missing hostname", cfg.Endpoint)
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("DOCS_ACCESS_KEY and DOCS_SECRET_KEY are required when document storage is enabled")
	}

	mc, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client for %s: %w", u.Host, err)
	}

	return &Client{
		mc:       mc,
		bucket:   cfg.Bucket,
		endpoint: u,
	}, nil
}

// Upload stores a document under an object name scoped to the job and item
// and returns the object URL for the checklist document_link field.
func (c *Client) Upload(ctx context.Context, jobID, itemID int64, filename, contentType string, r io.ReadSeeker, size int64) (string, error) {
	objectName := fmt.Sprintf("jobs/%d/items/%d/%s-%s", jobID, itemID, uuid.New().String(), filename)

	err := retry.WithRetry(ctx, retry.Gateway, func() error {
		if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
			return seekErr
		}
		_, putErr := c.mc.PutObject(ctx, c.bucket, objectName, r, size, minio.PutObjectOptions{
			ContentType: contentType,
		})
		return putErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	link := fmt.Sprintf("%s://%s/%s/%s", c.endpoint.Scheme, c.endpoint.Host, c.bucket, objectName)
	logrus.WithFields(logrus.Fields{
		"job_id":  jobID,
		"item_id": itemID,
		"object":  objectName,
	}).Info("Stored checklist document")
	return link, nil
}
