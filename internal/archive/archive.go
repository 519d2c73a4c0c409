// Package archive uploads committed sync payloads to S3-compatible storage.
// When no bucket is configured the NoopUploader is used and payloads are
// only kept in the reference tables themselves.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/refdata/internal/config"
	"github.com/hyperengineering/refdata/internal/record"
)

// Job is one committed sync awaiting upload.
type Job struct {
	SyncID      string
	Table       string
	Records     []record.WireRecord
	CompletedAt time.Time
}

// document is the JSON layout of an archived sync.
type document struct {
	SyncID      string              `json:"sync_id"`
	Table       string              `json:"table"`
	CompletedAt string              `json:"completed_at"`
	Count       int                 `json:"records_processed"`
	Records     []record.WireRecord `json:"data"`
}

// Uploader stores archived syncs.
type Uploader interface {
	Upload(ctx context.Context, job Job) error
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, body []byte, contentType string) error
}

// minioClientWrapper adapts *minio.Client to s3Client.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, body []byte, contentType string) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// S3Uploader writes each sync as a JSON object.
type S3Uploader struct {
	client s3Client
	bucket string
	prefix string
}

// Upload marshals the job and puts it under ObjectKey.
func (u *S3Uploader) Upload(ctx context.Context, job Job) error {
	body, err := Marshal(job)
	if err != nil {
		return err
	}
	key := ObjectKey(u.prefix, job)
	if err := u.client.PutObject(ctx, u.bucket, key, body, "application/json"); err != nil {
		return fmt.Errorf("upload sync archive %s: %w", key, err)
	}
	return nil
}

// NoopUploader is used when archive storage is not configured.
type NoopUploader struct{}

// Upload discards the job.
func (u *NoopUploader) Upload(ctx context.Context, job Job) error {
	return nil
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ArchiveConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// ObjectKey returns the object key for a sync.
// Convention: {prefix}/{table}/{yyyy}/{mm}/{dd}/{sync_id}.json
func ObjectKey(prefix string, job Job) string {
	day := job.CompletedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, job.Table, day, job.SyncID+".json")
}

// Marshal renders the archived document. Field order inside each record is
// the order the client sent.
func Marshal(job Job) ([]byte, error) {
	records := job.Records
	if records == nil {
		records = []record.WireRecord{}
	}
	body, err := json.Marshal(document{
		SyncID:      job.SyncID,
		Table:       job.Table,
		CompletedAt: job.CompletedAt.UTC().Format(time.RFC3339Nano),
		Count:       len(job.Records),
		Records:     records,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal sync archive: %w", err)
	}
	return body, nil
}
