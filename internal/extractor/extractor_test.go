package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name, body string
}

func writeZip(t *testing.T, path string, entries ...entry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func newZip() *Zip {
	return NewZip(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtract_RenamesMemberToArchiveStem(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "psc-snapshot-2024-03-15_3of31.zip")
	writeZip(t, archive,
		entry{"nested/", ""},
		entry{"nested/psc-snapshot-2024-03-14_3of31.txt", "{\"a\":1}\n"},
		entry{"other.txt", "ignored"},
	)

	out, err := newZip().Extract(context.Background(), archive, dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "psc-snapshot-2024-03-15_3of31.txt"), out)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", string(got))
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.zip")
	writeZip(t, empty, entry{"only-a-dir/", ""})
	_, err := newZip().Extract(context.Background(), empty, dir)
	assert.True(t, errors.Is(err, ErrEmptyArchive))

	corrupt := filepath.Join(dir, "corrupt.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("<html>not found</html>"), 0o644))
	_, err = newZip().Extract(context.Background(), corrupt, dir)
	assert.Error(t, err)

	_, err = newZip().Extract(context.Background(), filepath.Join(dir, "missing.zip"), dir)
	assert.Error(t, err)
}
