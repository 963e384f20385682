package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/brensch/pscparquet/internal/config"
)

// Minio uploads to a MinIO or other S3 compatible endpoint via minio-go.
type Minio struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

func NewMinio(cfg config.Config, logger *slog.Logger) (*Minio, error) {
	if cfg.MinioEndpoint == "" {
		return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("minio endpoint is required"))
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, wrapError(CodeAuthInvalid, false, fmt.Errorf("credentials are required"))
	}

	// Accept either host:port or a full URL.
	endpoint := cfg.MinioEndpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.MinioEndpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("create minio client: %w", err))
	}
	return &Minio{client: client, bucket: cfg.Bucket, region: cfg.S3Region, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	if m.bucket == "" {
		return wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket name is required"))
	}
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if exists {
		return nil
	}
	m.logger.Info("Creating bucket.")
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (m *Minio) Upload(ctx context.Context, localPath string, zone Zone, key string) error {
	if err := checkTarget(m.bucket, key); err != nil {
		return err
	}
	start := time.Now()
	info, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return classifyMinioError(err)
	}
	m.logger.Debug("Uploaded object.",
		slog.String("zone", string(zone)),
		slog.String("key", key),
		slog.Int64("bytes", info.Size),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}

func classifyMinioError(err error) *Error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if classified, ok := classifyByCode(resp.Code, err); ok {
			return classified
		}
	}
	return classifyMessage(err)
}
