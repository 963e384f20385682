package parquetio

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// FileInfo summarises a Parquet file without loading its data.
type FileInfo struct {
	Path    string
	Rows    int64
	Columns []string
}

// Stat reads the footer of the Parquet file at path.
func Stat(path string) (FileInfo, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return FileInfo{}, fmt.Errorf("read footer %s: %w", path, err)
	}
	defer pr.ReadStop()

	info := FileInfo{Path: path, Rows: pr.GetNumRows()}
	// Schema[0] is the root group.
	for _, el := range pr.Footer.Schema[1:] {
		info.Columns = append(info.Columns, el.GetName())
	}
	return info, nil
}

// ReadColumn reads every value of the column at index.
func ReadColumn(path string, index int) ([]any, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("read footer %s: %w", path, err)
	}
	defer pr.ReadStop()

	values, _, _, err := pr.ReadColumnByIndex(int64(index), pr.GetNumRows())
	if err != nil {
		return nil, fmt.Errorf("read column %d of %s: %w", index, path, err)
	}
	return values, nil
}
