package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mikeyg42/sentinel/internal/config"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

// UploadError wraps a failed object-store operation with enough context
// to decide whether a later retry makes sense.
type UploadError struct {
	Op        string
	Key       string
	Err       error
	Retryable bool
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader pushes finalized artifacts to an S3-compatible bucket.
type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	log    watchlog.Logger
}

// NewUploader connects to the endpoint and makes sure the bucket exists.
func NewUploader(cfg config.ArchiveConfig) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("archive bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("archive bucket create: %w", err)
		}
	}

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    watchlog.L().Named("archive"),
	}, nil
}

// ObjectKey places an artifact under a dated prefix so buckets stay
// browsable: prefix/2026-03-14/motion_20260314_081500.mp4.
func (u *Uploader) ObjectKey(localPath string, startedAt time.Time) string {
	name := filepath.Base(localPath)
	day := startedAt.Format("2006-01-02")
	if u.prefix == "" {
		return day + "/" + name
	}
	return u.prefix + "/" + day + "/" + name
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// UploadFile copies one local artifact to the bucket, retrying transient
// failures with exponential backoff. The local file is left in place.
func (u *Uploader) UploadFile(ctx context.Context, localPath string, startedAt time.Time) error {
	key := u.ObjectKey(localPath, startedAt)

	op := func() error {
		_, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
			ContentType: contentTypeFor(localPath),
		})
		return err
	}

	ebo := backoff.NewExponentialBackOff()
	ebo.MaxElapsedTime = 2 * time.Minute

	if err := backoff.Retry(op, backoff.WithContext(ebo, ctx)); err != nil {
		return &UploadError{Op: "upload", Key: key, Err: err, Retryable: true}
	}

	u.log.Info("artifact archived",
		watchlog.String("key", key),
		watchlog.String("path", localPath))
	return nil
}
