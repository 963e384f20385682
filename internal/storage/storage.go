// Package storage uploads staged files into the zoned object layout shared by
// every backend: {zone}/year=YYYY/month=MM/day=DD/{file}.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/pscparquet/internal/config"
)

// Zone is the top-level key prefix separating raw and processed artifacts.
type Zone string

const (
	ZoneRaw       Zone = "raw"
	ZoneProcessed Zone = "processed"
)

// Backend names accepted by New.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendLocal = "local"
)

// Uploader stores a local file under key. Implementations must be safe for
// concurrent use; keys never collide across partitions.
type Uploader interface {
	Upload(ctx context.Context, localPath string, zone Zone, key string) error
}

// Key builds the date partitioned object key for fileName in zone.
func Key(zone Zone, date time.Time, fileName string) string {
	return path.Join(
		string(zone),
		fmt.Sprintf("year=%04d", date.Year()),
		fmt.Sprintf("month=%02d", int(date.Month())),
		fmt.Sprintf("day=%02d", date.Day()),
		fileName,
	)
}

// New builds the uploader named by cfg.StorageBackend.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (Uploader, error) {
	l := logger.With(slog.String("backend", cfg.StorageBackend), slog.String("bucket", cfg.Bucket))
	switch strings.ToLower(cfg.StorageBackend) {
	case BackendS3:
		return NewS3(cfg, l)
	case BackendMinio:
		m, err := NewMinio(cfg, l)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case BackendLocal, "":
		return NewLocal(cfg.LocalStoreDir, cfg.Bucket, l)
	default:
		return nil, wrapError(CodeInvalidConfig, false, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend))
	}
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".zip":
		return "application/zip"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".txt", ".json":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}

func checkTarget(bucket, key string) error {
	if bucket == "" {
		return wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket is required"))
	}
	if key == "" {
		return wrapError(CodeWriteFailed, false, fmt.Errorf("object key is required"))
	}
	return nil
}
