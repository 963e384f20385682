package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Constants for event types, in pipeline order.
const (
	EventDownloadStart = "download_start"
	EventDownloadEnd   = "download_end"
	EventRawUploaded   = "raw_uploaded"
	EventExtractEnd    = "extract_end"
	EventParseEnd      = "parse_end"
	EventTransformEnd  = "transform_end"
	EventPersistEnd    = "persist_end"
	EventProcessEnd    = "process_end" // processed artifact uploaded
	EventError         = "error"
)

// Schema SQL
const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS psc_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS psc_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('psc_event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    partition_id    VARCHAR NOT NULL,      -- e.g. 3of31
    snapshot_date   DATE NOT NULL,         -- processing date used in file names
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    file_name       VARCHAR,
    object_key      VARCHAR,
    message         VARCHAR,
    rows_out        BIGINT,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_psc_event_log_partition ON psc_event_log (partition_id, snapshot_date);
CREATE INDEX IF NOT EXISTS idx_psc_event_log_event_time ON psc_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// Event is one pipeline stage transition for a partition.
type Event struct {
	Partition    string
	SnapshotDate time.Time
	Event        string
	FileName     string
	ObjectKey    string
	Message      string
	Rows         int64 // negative when not applicable
	Duration     time.Duration
}

// Log writes events for one run. It is safe for concurrent use.
type Log struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// NewLog starts a run with a fresh run ID.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db, runID: uuid.NewString(), now: time.Now}
}

func (l *Log) RunID() string { return l.runID }

// Record inserts ev into the log.
func (l *Log) Record(ctx context.Context, ev Event) error {
	query := `
        INSERT INTO psc_event_log (run_id, partition_id, snapshot_date, event, event_timestamp, file_name, object_key, message, rows_out, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	rows := sql.NullInt64{Int64: ev.Rows, Valid: ev.Rows >= 0}
	durationMs := sql.NullInt64{Int64: ev.Duration.Milliseconds(), Valid: ev.Duration > 0}

	_, err := l.db.ExecContext(ctx, query,
		l.runID,
		ev.Partition,
		ev.SnapshotDate.Format("2006-01-02"),
		ev.Event,
		l.now().UTC(),
		sql.NullString{String: ev.FileName, Valid: ev.FileName != ""},
		sql.NullString{String: ev.ObjectKey, Valid: ev.ObjectKey != ""},
		sql.NullString{String: ev.Message, Valid: ev.Message != ""},
		rows,
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", ev.Event, ev.Partition, err)
	}
	return nil
}

// GetLatestEvent retrieves the most recent event for a partition on a snapshot date.
func GetLatestEvent(ctx context.Context, db *sql.DB, partitionID string, date time.Time) (event string, timestamp time.Time, message string, found bool, err error) {
	query := `
        SELECT event, event_timestamp, message
        FROM psc_event_log
        WHERE partition_id = ? AND snapshot_date = ?
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT 1;
    `
	var msg sql.NullString
	row := db.QueryRowContext(ctx, query, partitionID, date.Format("2006-01-02"))
	err = row.Scan(&event, &timestamp, &msg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, "", false, nil
		}
		return "", time.Time{}, "", false, fmt.Errorf("failed query latest event for '%s': %w", partitionID, err)
	}
	return event, timestamp, msg.String, true, nil
}

// GetCompletedPartitions returns the partitions whose processed artifact was
// uploaded for date in any run.
func GetCompletedPartitions(ctx context.Context, db *sql.DB, date time.Time) (map[string]bool, error) {
	query := `
		SELECT DISTINCT partition_id
		FROM psc_event_log
		WHERE snapshot_date = ? AND event = ?;
	`
	rows, err := db.QueryContext(ctx, query, date.Format("2006-01-02"), EventProcessEnd)
	if err != nil {
		return nil, fmt.Errorf("query completed partitions: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed partition: %w", err)
		}
		completed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed partitions: %w", err)
	}
	return completed, nil
}

// DisplayHistory writes the event log to w, newest first.
func DisplayHistory(ctx context.Context, db *sql.DB, w io.Writer, partitionFilter, eventFilter string, limit int) error {
	query := `
        SELECT partition_id, snapshot_date, event, event_timestamp, message, duration_ms, rows_out, object_key
        FROM psc_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if partitionFilter != "" {
		conditions = append(conditions, fmt.Sprintf("partition_id = $%d", argCounter))
		args = append(args, partitionFilter)
		argCounter++
	}
	if eventFilter != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, eventFilter)
		argCounter++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	fmt.Fprintf(w, "--- Event Log History (Limit %d) ---\n", limit)
	fmt.Fprintf(w, "%-10s | %-10s | %-14s | %-25s | %-10s | %-9s | %s\n", "Partition", "Snapshot", "Event", "Timestamp (UTC)", "DurationMS", "Rows", "Message/Details")
	fmt.Fprintln(w, strings.Repeat("-", 130))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w \n Query: %s \n Args: %v", err, query, args)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var partitionID, event string
		var snapshot, timestamp time.Time
		var message, objectKey sql.NullString
		var durationMs, rowsOut sql.NullInt64
		if err := rows.Scan(&partitionID, &snapshot, &event, &timestamp, &message, &durationMs, &rowsOut, &objectKey); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr, rowsStr := "", ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}
		if rowsOut.Valid {
			rowsStr = fmt.Sprintf("%d", rowsOut.Int64)
		}
		details := message.String
		if objectKey.Valid && objectKey.String != "" {
			details += fmt.Sprintf(" (Key: %s)", objectKey.String)
		}

		fmt.Fprintf(w, "%-10s | %-10s | %-14s | %-25s | %-10s | %-9s | %s\n",
			partitionID, snapshot.Format("2006-01-02"), event, timestamp.Format(time.RFC3339), durationStr, rowsStr, strings.TrimSpace(details))
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", count)
	return nil
}
