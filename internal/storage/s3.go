package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/brensch/pscparquet/internal/config"
)

// S3 uploads through the aws-sdk-go multipart upload manager.
type S3 struct {
	uploader *s3manager.Uploader
	bucket   string
	logger   *slog.Logger
}

// NewS3 builds an S3 uploader. Static credentials are used when both keys are
// set, otherwise the SDK's default chain (env, shared config, instance role).
func NewS3(cfg config.Config, logger *slog.Logger) (*S3, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.S3Region)}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, wrapError(CodeInvalidConfig, false, fmt.Errorf("create S3 session: %w", err))
	}
	return &S3{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		logger:   logger,
	}, nil
}

func (s *S3) Upload(ctx context.Context, localPath string, zone Zone, key string) error {
	if err := checkTarget(s.bucket, key); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return wrapError(CodeLocalFile, false, fmt.Errorf("open %s: %w", localPath, err))
	}
	defer f.Close()

	start := time.Now()
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return classifyS3Error(err)
	}
	s.logger.Debug("Uploaded object.",
		slog.String("zone", string(zone)),
		slog.String("key", key),
		slog.String("location", out.Location),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}

func classifyS3Error(err error) *Error {
	var ae awserr.Error
	if errors.As(err, &ae) {
		if classified, ok := classifyByCode(ae.Code(), err); ok {
			return classified
		}
		if ae.Code() == request.CanceledErrorCode {
			return wrapError(CodeTimeout, true, err)
		}
	}
	return classifyMessage(err)
}
