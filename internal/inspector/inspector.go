package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/pscparquet/internal/partition"
)

// dateColumn is summarised with MIN/MAX when a file has it.
const dateColumn = "notified_on"

// maxParallelFiles bounds concurrent read_parquet queries.
const maxParallelFiles = 4

// FileStats is the DuckDB summary of one Parquet file.
type FileStats struct {
	Path      string
	Partition partition.ID
	Rows      int64
	Columns   int
	MinDate   sql.NullTime
	MaxDate   sql.NullTime
	Err       error
}

// SnapshotSummary aggregates the files of one snapshot date.
type SnapshotSummary struct {
	Date      string
	Files     []FileStats
	TotalRows int64
	Schema    string // DESCRIBE output of the first file
	SchemaErr error
}

// Inspect summarises every processed Parquet file under dir, grouped by
// snapshot date, and writes a report to w.
func Inspect(ctx context.Context, db *sql.DB, dir string, w io.Writer, logger *slog.Logger) ([]SnapshotSummary, error) {
	logger.Info("--- Starting Parquet File Summary Inspection ---", slog.String("dir", dir))

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `INSTALL parquet; LOAD parquet;`); err != nil {
		logger.Warn("Failed install/load parquet extension.", "error", err)
	}
	conn.Close()

	files, err := findParquet(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Info("No *.parquet files found.", "dir", dir)
		return nil, nil
	}

	// Group by snapshot date, parsed from the file name.
	byDate := make(map[string][]FileStats)
	var categorizationErrors error
	for _, fp := range files {
		date, id, err := parseParquetName(filepath.Base(fp))
		if err != nil {
			logger.Warn("Skipping file due to unexpected name format.", slog.String("file", fp), slog.String("error", err.Error()))
			categorizationErrors = errors.Join(categorizationErrors, err)
			continue
		}
		byDate[date] = append(byDate[date], FileStats{Path: fp, Partition: id})
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	summaries := make([]SnapshotSummary, 0, len(dates))
	finalErr := categorizationErrors
	for _, date := range dates {
		s := SnapshotSummary{Date: date, Files: byDate[date]}
		sort.Slice(s.Files, func(i, j int) bool {
			a, _ := s.Files[i].Partition.Shard()
			b, _ := s.Files[j].Partition.Shard()
			return a < b
		})

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelFiles)
		for i := range s.Files {
			f := &s.Files[i]
			g.Go(func() error {
				f.Rows, f.Columns, f.MinDate, f.MaxDate, f.Err = fileStats(gctx, db, f.Path)
				return nil
			})
		}
		g.Wait()

		s.Schema, s.SchemaErr = describe(ctx, db, s.Files[0].Path)
		for _, f := range s.Files {
			s.TotalRows += f.Rows
			finalErr = errors.Join(finalErr, f.Err)
		}
		finalErr = errors.Join(finalErr, s.SchemaErr)
		summaries = append(summaries, s)
	}

	printReport(w, summaries)
	if finalErr != nil {
		logger.Warn("Inspection completed with errors.", "error", finalErr)
	}
	logger.Info("--- Parquet File Summary Inspection Finished ---")
	return summaries, finalErr
}

func findParquet(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".parquet") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

func parseParquetName(name string) (string, partition.ID, error) {
	if !strings.HasSuffix(name, ".parquet") {
		return "", "", fmt.Errorf("filename '%s' is not a parquet file", name)
	}
	date, id, err := partition.ParseArchiveName(strings.TrimSuffix(name, ".parquet") + ".zip")
	if err != nil {
		return "", "", fmt.Errorf("filename '%s' does not match psc-snapshot-YYYY-MM-DD_NofM.parquet", name)
	}
	return date.Format(partition.DateLayout), id, nil
}

func quotePath(p string) string {
	return "'" + strings.ReplaceAll(filepath.ToSlash(p), "'", "''") + "'"
}

func fileStats(ctx context.Context, db *sql.DB, path string) (rows int64, cols int, minDate, maxDate sql.NullTime, err error) {
	names, err := columnNames(ctx, db, path)
	if err != nil {
		return 0, 0, minDate, maxDate, err
	}
	cols = len(names)

	statsSQL := fmt.Sprintf(`SELECT COUNT(*), NULL::DATE, NULL::DATE FROM read_parquet(%s);`, quotePath(path))
	for _, n := range names {
		if n == dateColumn {
			statsSQL = fmt.Sprintf(`SELECT COUNT(*), MIN(%s), MAX(%s) FROM read_parquet(%s);`, dateColumn, dateColumn, quotePath(path))
			break
		}
	}
	if err := db.QueryRowContext(ctx, statsSQL).Scan(&rows, &minDate, &maxDate); err != nil {
		return 0, cols, minDate, maxDate, fmt.Errorf("stats for %s: %w", path, err)
	}
	return rows, cols, minDate, maxDate, nil
}

func columnNames(ctx context.Context, db *sql.DB, path string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM parquet_schema(%s) WHERE num_children IS NULL OR num_children = 0;`, quotePath(path)))
	if err != nil {
		return nil, fmt.Errorf("query schema for %s: %w", path, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan schema row for %s: %w", path, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func describe(ctx context.Context, db *sql.DB, path string) (string, error) {
	schemaRows, err := db.QueryContext(ctx, fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet(%s);", quotePath(path)))
	if err != nil {
		return "", fmt.Errorf("query schema for %s: %w", path, err)
	}
	defer schemaRows.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "  %-45s | %-10s | %s\n", "Column Name", "Column Type", "Null")
	b.WriteString("  " + strings.Repeat("-", 70) + "\n")
	for schemaRows.Next() {
		var colName, colType, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := schemaRows.Scan(&colName, &colType, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			return "", fmt.Errorf("scan schema row for %s: %w", path, err)
		}
		fmt.Fprintf(&b, "  %-45s | %-10s | %s\n", colName.String, colType.String, nullVal.String)
	}
	if err := schemaRows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema rows for %s: %w", path, err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func printReport(w io.Writer, summaries []SnapshotSummary) {
	fmt.Fprintln(w, "\n--- Parquet File Summary ---")
	for _, s := range summaries {
		fmt.Fprintf(w, "\n=== Snapshot: %s ===\n", s.Date)
		fmt.Fprintf(w, "    (Found %d files, %d rows)\n", len(s.Files), s.TotalRows)
		fmt.Fprintln(w, "\n  Representative Schema:")
		if s.SchemaErr != nil {
			fmt.Fprintf(w, "    ERROR retrieving schema: %v\n", s.SchemaErr)
		} else {
			fmt.Fprintln(w, s.Schema)
		}
	}

	fmt.Fprintln(w, "\n--- Per-Partition Statistics ---")
	fmt.Fprintf(w, "%-12s | %-10s | %-12s | %-8s | %-12s | %-12s | %s\n", "Snapshot", "Partition", "Rows", "Columns", "Min "+dateColumn, "Max "+dateColumn, "Errors")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, s := range summaries {
		for _, f := range s.Files {
			minStr, maxStr := "N/A", "N/A"
			if f.MinDate.Valid {
				minStr = f.MinDate.Time.UTC().Format(time.DateOnly)
			}
			if f.MaxDate.Valid {
				maxStr = f.MaxDate.Time.UTC().Format(time.DateOnly)
			}
			errStr := ""
			if f.Err != nil {
				errStr = "Stats Error"
			}
			fmt.Fprintf(w, "%-12s | %-10s | %-12d | %-8d | %-12s | %-12s | %s\n", s.Date, f.Partition, f.Rows, f.Columns, minStr, maxStr, errStr)
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 100))
}
