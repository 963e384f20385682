// Package extractor unpacks downloaded snapshot archives.
package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrEmptyArchive is returned when an archive holds no file entries.
var ErrEmptyArchive = errors.New("archive contains no files")

// Zip extracts the single NDJSON member of a snapshot archive.
type Zip struct {
	logger *slog.Logger
}

func NewZip(logger *slog.Logger) *Zip {
	return &Zip{logger: logger}
}

// TextPath is where Extract writes the member of archivePath inside destDir:
// the archive's stem with a .txt extension.
func TextPath(archivePath, destDir string) string {
	base := filepath.Base(archivePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(destDir, stem+".txt")
}

// Extract writes the first non-directory entry of archivePath to
// TextPath(archivePath, destDir) and returns that path. Other entries are ignored.
func (z *Zip) Extract(ctx context.Context, archivePath, destDir string) (string, error) {
	start := time.Now()
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open zip %s: %w", archivePath, err)
	}
	defer r.Close()

	var member *zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			member = f
			break
		}
	}
	if member == nil {
		return "", fmt.Errorf("%s: %w", archivePath, ErrEmptyArchive)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outPath := TextPath(archivePath, destDir)
	l := z.logger.With(slog.String("member", member.Name), slog.String("output_path", outPath))
	l.Debug("Extracting archive member.", slog.Uint64("uncompressed_bytes", member.UncompressedSize64))

	rc, err := member.Open()
	if err != nil {
		return "", fmt.Errorf("open member %s: %w", member.Name, err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		rc.Close()
		return "", fmt.Errorf("create %s: %w", outPath, err)
	}
	n, copyErr := io.Copy(out, rc)
	if err := errors.Join(copyErr, out.Close(), rc.Close()); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("extract %s: %w", member.Name, err)
	}

	l.Debug("Extracted archive member.", slog.Int64("bytes", n), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return outPath, nil
}
