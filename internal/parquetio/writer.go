// Package parquetio persists flat RecordSets as Parquet files.
package parquetio

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/pscparquet/internal/recordset"
)

// ErrNotFlat is returned for RecordSets that still hold record or list columns.
var ErrNotFlat = errors.New("recordset is not flat")

// ErrNameCollision is returned when two columns would share one Parquet column.
var ErrNameCollision = errors.New("parquet column name collision")

// writerParallelism is the goroutine count handed to the parquet-go writer.
const writerParallelism = 4

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// ColumnName is the Parquet column name used for a RecordSet column.
func ColumnName(name string) string {
	clean := unsafeName.ReplaceAllString(name, "_")
	if clean == "" {
		return "_"
	}
	return clean
}

// Metadata renders the parquet-go schema tags for a flat schema. Every column is optional.
func Metadata(schema recordset.Schema) ([]string, error) {
	md := make([]string, len(schema))
	for i, f := range schema {
		if f.Type.Kind != recordset.KindScalar {
			return nil, fmt.Errorf("column %q is %s: %w", f.Name, f.Type.Kind, ErrNotFlat)
		}
		md[i] = fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", ColumnName(f.Name), physicalType(f.Type.Scalar))
	}
	return md, nil
}

func physicalType(s recordset.Scalar) string {
	switch s {
	case recordset.Bool:
		return "type=BOOLEAN"
	case recordset.Int8:
		return "type=INT32, convertedtype=INT_8"
	case recordset.Int16:
		return "type=INT32, convertedtype=INT_16"
	case recordset.Int32:
		return "type=INT32"
	case recordset.Int64:
		return "type=INT64"
	case recordset.Float64:
		return "type=DOUBLE"
	case recordset.Date:
		return "type=INT32, convertedtype=DATE"
	default:
		// Strings and all-null columns.
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
}

// WriteFile writes rs to path with SNAPPY compression. rs must be flat.
func WriteFile(rs *recordset.RecordSet, path string) (err error) {
	schema := rs.Schema()
	md, err := Metadata(schema)
	if err != nil {
		return err
	}
	if err := checkUniqueNames(schema); err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	defer func() {
		if closeErr := fw.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close file %s: %w", path, closeErr))
		}
	}()

	pw, err := writer.NewCSVWriter(md, fw, writerParallelism)
	if err != nil {
		return fmt.Errorf("create writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	cols := rs.Columns()
	rec := make([]*string, len(cols))
	for row := 0; row < rs.Len(); row++ {
		for j, c := range cols {
			rec[j] = formatCell(c.Values[row])
		}
		if err := pw.WriteString(rec); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("stop writer %s: %w", path, err)
	}
	return nil
}

func checkUniqueNames(schema recordset.Schema) error {
	seen := make(map[string]string, len(schema))
	for _, f := range schema {
		// parquet-go addresses columns by the name with its first letter upper-cased.
		name := common.HeadToUpper(ColumnName(f.Name))
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("columns %q and %q both map to parquet column %q: %w", prev, f.Name, name, ErrNameCollision)
		}
		seen[name] = f.Name
	}
	return nil
}

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// formatCell renders a cell in the textual form the CSV writer parses for its column type.
func formatCell(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case bool:
		s = strconv.FormatBool(x)
	case int8:
		s = strconv.FormatInt(int64(x), 10)
	case int16:
		s = strconv.FormatInt(int64(x), 10)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		s = strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		days := int64(math.Floor(x.Sub(epoch).Hours() / 24))
		s = strconv.FormatInt(days, 10)
	default:
		s = fmt.Sprint(x)
	}
	return &s
}
