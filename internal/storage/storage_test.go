package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/pscparquet/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKey(t *testing.T) {
	date := time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "processed/year=2024/month=03/day=05/foo.parquet", Key(ZoneProcessed, date, "foo.parquet"))
	assert.Equal(t, "raw/year=2024/month=03/day=05/psc-snapshot-2024-03-05_1of31.zip",
		Key(ZoneRaw, date, "psc-snapshot-2024-03-05_1of31.zip"))
}

func TestLocal_Upload(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, os.WriteFile(src, []byte("PK\x03\x04payload"), 0o644))

	store, err := NewLocal(dir, "bucket", discardLogger())
	require.NoError(t, err)

	key := Key(ZoneRaw, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "a.zip")
	require.NoError(t, store.Upload(context.Background(), src, ZoneRaw, key))

	got, err := os.ReadFile(filepath.Join(dir, "bucket", "raw", "year=2024", "month=01", "day=02", "a.zip"))
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04payload", string(got))

	// Overwrite is allowed; the key is owned by one partition.
	require.NoError(t, os.WriteFile(src, []byte("second"), 0o644))
	require.NoError(t, store.Upload(context.Background(), src, ZoneRaw, key))
	got, err = os.ReadFile(store.Path(key))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestLocal_UploadMissingSource(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "bucket", discardLogger())
	require.NoError(t, err)

	err = store.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), ZoneRaw, "raw/x.zip")
	require.Error(t, err)
	assert.Equal(t, CodeLocalFile, CodeOf(err))
}

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()

	up, err := New(ctx, config.Config{StorageBackend: "local", LocalStoreDir: t.TempDir(), Bucket: "b"}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &Local{}, up)

	up, err = New(ctx, config.Config{StorageBackend: "S3", S3Region: "eu-west-2", Bucket: "b"}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &S3{}, up)

	_, err = New(ctx, config.Config{StorageBackend: "minio", Bucket: "b"}, discardLogger())
	require.Error(t, err)
	assert.Equal(t, CodeEndpointUnreachable, CodeOf(err))

	_, err = New(ctx, config.Config{StorageBackend: "gcs"}, discardLogger())
	require.Error(t, err)
	assert.Equal(t, CodeInvalidConfig, CodeOf(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		code      string
		retryable bool
	}{
		{"s3 no bucket", classifyS3Error(awserr.New("NoSuchBucket", "missing", nil)), CodeBucketNotFound, false},
		{"s3 denied", classifyS3Error(awserr.New("AccessDenied", "nope", nil)), CodePermissionDenied, false},
		{"s3 canceled", classifyS3Error(awserr.New("RequestCanceled", "ctx", nil)), CodeTimeout, true},
		{"minio auth", classifyMinioError(minio.ErrorResponse{Code: "InvalidAccessKeyId"}), CodeAuthInvalid, false},
		{"refused", classifyMinioError(errors.New("dial tcp: connection refused")), CodeEndpointUnreachable, true},
		{"unknown", classifyS3Error(errors.New("boom")), CodeWriteFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.NotNil(t, tt.err.Unwrap())
		})
	}
}
