package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds MinIO connection configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Client wraps a MinIO client scoped to a single bucket. Media blobs and
// final artifacts are addressed by opaque object keys; nothing here assumes
// local filesystem persistence.
type Client struct {
	mc     *minio.Client
	bucket string
	logger *slog.Logger
}

// NewClient connects to MinIO and ensures the configured bucket exists
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	mc, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	client := &Client{
		mc:     mc,
		bucket: config.Bucket,
		logger: logger,
	}

	exists, err := mc.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", config.Bucket, err)
	}
	if !exists {
		logger.Warn("Bucket does not exist, creating",
			slog.String("bucket", config.Bucket),
		)
		if err := mc.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", config.Bucket, err)
		}
	}

	logger.Info("Connected to object storage",
		slog.String("endpoint", config.Endpoint),
		slog.String("bucket", config.Bucket),
	)

	return client, nil
}

// Upload stores a blob under the given object key
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q: %w", key, err)
	}

	c.logger.Debug("Object uploaded",
		slog.String("key", key),
		slog.Int("size", len(data)),
	)

	return nil
}

// UploadFile stores a local file under the given object key
func (c *Client) UploadFile(ctx context.Context, key, filePath, contentType string) error {
	_, err := c.mc.FPutObject(ctx, c.bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file %q as %q: %w", filePath, key, err)
	}

	return nil
}

// DownloadFile fetches an object to a local path
func (c *Client) DownloadFile(ctx context.Context, key, destPath string) error {
	if err := c.mc.FGetObject(ctx, c.bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download object %q: %w", key, err)
	}

	return nil
}

// PresignedGetURL returns a time-limited download URL for an object key
func (c *Client) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %q: %w", key, err)
	}

	return u.String(), nil
}

// Remove deletes an object
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %q: %w", key, err)
	}

	return nil
}

// HealthCheck verifies the bucket is reachable and still exists
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("object storage health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("object storage health check failed: bucket %q does not exist", c.bucket)
	}

	return nil
}
