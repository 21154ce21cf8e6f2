package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/domain"
)

// s3Backend is the backend name used in errors.
const s3Backend = "s3"

// S3Provider stores objects in any S3-compatible service (AWS S3, MinIO,
// most object stores) via the MinIO client.
type S3Provider struct {
	client *minio.Client
	bucket string
}

// NewS3Provider creates the S3-compatible backend from configuration.
func NewS3Provider(cfg config.S3StorageConfig) (*S3Provider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create s3 client: %v", domain.ErrConfiguration, err)
	}

	return &S3Provider{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist. Called once at
// startup.
func (p *S3Provider) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return newProviderError(s3Backend, "init", err)
	}

	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return newProviderError(s3Backend, "init", err)
		}
	}
	return nil
}

// Type reports the backend class for persisted metadata.
func (p *S3Provider) Type() domain.StorageType {
	return domain.StorageTypeCloud
}

// Upload stores the object under key.
func (p *S3Provider) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := p.client.PutObject(ctx, p.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return newProviderError(s3Backend, "upload", err)
	}
	return nil
}

// Download returns the object bytes. The first read surfaces not-found, so
// the object is stat'd up front to report it eagerly.
func (p *S3Provider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := p.stat(ctx, key, "download"); err != nil {
		return nil, err
	}

	obj, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, newProviderError(s3Backend, "download", err)
	}
	return obj, nil
}

// SignedURL generates a presigned GET URL valid for ttl.
func (p *S3Provider) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, ttl, nil)
	if err != nil {
		return "", newProviderError(s3Backend, "signed_url", err)
	}
	return u.String(), nil
}

// Exists reports whether the object is present.
func (p *S3Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := p.stat(ctx, key, "exists")
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object. S3 delete of an absent key already succeeds, so
// idempotency comes for free.
func (p *S3Provider) Delete(ctx context.Context, key string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return newProviderError(s3Backend, "delete", err)
	}
	return nil
}

// Metadata returns size, content type and modification time.
func (p *S3Provider) Metadata(ctx context.Context, key string) (*ObjectMetadata, error) {
	info, err := p.stat(ctx, key, "metadata")
	if err != nil {
		return nil, err
	}

	return &ObjectMetadata{
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// stat wraps StatObject with not-found mapping.
func (p *S3Provider) stat(ctx context.Context, key, operation string) (minio.ObjectInfo, error) {
	info, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return minio.ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return minio.ObjectInfo{}, newProviderError(s3Backend, operation, err)
	}
	return info, nil
}
