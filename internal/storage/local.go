package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Local mirrors the object layout under a directory: {root}/{bucket}/{key}.
type Local struct {
	root   string
	logger *slog.Logger
}

func NewLocal(dir, bucket string, logger *slog.Logger) (*Local, error) {
	if dir == "" {
		return nil, wrapError(CodeInvalidConfig, false, fmt.Errorf("local store directory is required"))
	}
	root := filepath.Join(dir, bucket)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapError(CodeLocalFile, false, fmt.Errorf("create %s: %w", root, err))
	}
	return &Local{root: root, logger: logger}, nil
}

// Path returns where key is stored.
func (l *Local) Path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Upload copies localPath into place through a temp file so a reader never
// observes a partial object.
func (l *Local) Upload(ctx context.Context, localPath string, zone Zone, key string) error {
	if err := checkTarget(l.root, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapError(CodeTimeout, true, err)
	}
	dst := l.Path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return wrapError(CodeWriteFailed, false, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return wrapError(CodeLocalFile, false, fmt.Errorf("open %s: %w", localPath, err))
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return wrapError(CodeWriteFailed, false, err)
	}
	n, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return wrapError(CodeWriteFailed, false, fmt.Errorf("write %s: %w", dst, firstErr(copyErr, closeErr)))
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return wrapError(CodeWriteFailed, false, err)
	}
	l.logger.Debug("Stored object.", slog.String("zone", string(zone)), slog.String("path", dst), slog.Int64("bytes", n))
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
