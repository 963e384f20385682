// Package pipeline processes one snapshot partition end to end: download,
// raw upload, extract, parse, flatten, cast, persist and processed upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/pscparquet/internal/db"
	"github.com/brensch/pscparquet/internal/parquetio"
	"github.com/brensch/pscparquet/internal/partition"
	"github.com/brensch/pscparquet/internal/recordset"
	"github.com/brensch/pscparquet/internal/storage"
	"github.com/brensch/pscparquet/internal/transform"
)

// Downloader streams a published file into w.
type Downloader interface {
	Download(ctx context.Context, fileName string, w io.Writer) (int64, error)
}

// Extractor unpacks an archive's text member into destDir and returns its path.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) (string, error)
}

// Recorder persists stage events.
type Recorder interface {
	Record(ctx context.Context, ev db.Event) error
}

// Options configures a Pipeline.
type Options struct {
	StagingDir string // parent of per-partition temp dirs; "" for the OS default
	Cast       transform.CastSpec
	RawOnly    bool             // stop after the raw upload
	Now        func() time.Time // defaults to time.Now
}

// Artifact describes the last object a successful Process uploaded.
type Artifact struct {
	Partition partition.ID
	Zone      storage.Zone
	Key       string
	RawKey    string
	LocalName string
	Rows      int
	Columns   int
}

type Pipeline struct {
	downloader Downloader
	extractor  Extractor
	uploader   storage.Uploader
	recorder   Recorder
	opts       Options
	logger     *slog.Logger
}

// New wires a Pipeline. A nil recorder disables event logging.
func New(opts Options, dl Downloader, ex Extractor, up storage.Uploader, rec Recorder, logger *slog.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		downloader: dl,
		extractor:  ex,
		uploader:   up,
		recorder:   rec,
		opts:       opts,
		logger:     logger,
	}
}

// run carries the per-partition state through the stages.
type run struct {
	id     partition.ID
	date   time.Time
	dir    string
	logger *slog.Logger
}

// Process runs every stage for id in order. Staging files are removed on
// return whatever the outcome; an uploaded raw archive is kept even when a
// later stage fails.
func (p *Pipeline) Process(ctx context.Context, id partition.ID) (art Artifact, err error) {
	start := time.Now()
	r := &run{
		id:     id,
		date:   p.opts.Now(),
		logger: p.logger.With(slog.String("partition", string(id))),
	}
	art.Partition = id

	defer func() {
		if err != nil {
			r.logger.Error("Partition failed.", "stage", Classify(err), "error", err)
			p.record(ctx, r, db.Event{Event: db.EventError, Message: err.Error(), Rows: -1, Duration: time.Since(start)})
		}
	}()

	if p.opts.StagingDir != "" {
		if err := os.MkdirAll(p.opts.StagingDir, 0o755); err != nil {
			return art, fmt.Errorf("%w: create staging root: %w", ErrPersist, err)
		}
	}
	r.dir, err = os.MkdirTemp(p.opts.StagingDir, "psc-"+string(id)+"-")
	if err != nil {
		return art, fmt.Errorf("%w: create staging dir: %w", ErrPersist, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(r.dir); rmErr != nil {
			r.logger.Warn("Failed to remove staging dir.", "dir", r.dir, "error", rmErr)
		}
	}()

	archiveName := partition.ArchiveName(r.date, id)
	archivePath, err := p.download(ctx, r, archiveName)
	if err != nil {
		return art, err
	}

	art.RawKey = storage.Key(storage.ZoneRaw, p.opts.Now(), archiveName)
	if err := p.upload(ctx, r, archivePath, storage.ZoneRaw, art.RawKey); err != nil {
		return art, err
	}
	p.record(ctx, r, db.Event{Event: db.EventRawUploaded, FileName: archiveName, ObjectKey: art.RawKey, Rows: -1})
	if p.opts.RawOnly {
		art.Zone, art.Key, art.LocalName = storage.ZoneRaw, art.RawKey, archiveName
		r.logger.Info("Raw archive staged.", slog.String("key", art.RawKey), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
		return art, nil
	}

	textPath, err := p.extractor.Extract(ctx, archivePath, r.dir)
	if err != nil {
		return art, fmt.Errorf("%w: %s: %w", ErrExtraction, archiveName, err)
	}
	// The archive is no longer needed once extracted.
	removeStaged(r, archivePath)
	p.record(ctx, r, db.Event{Event: db.EventExtractEnd, FileName: filepath.Base(textPath), Rows: -1})

	rs, err := p.parse(textPath)
	if err != nil {
		return art, err
	}
	removeStaged(r, textPath)
	p.record(ctx, r, db.Event{Event: db.EventParseEnd, Rows: int64(rs.Len())})

	rs = p.transform(r, rs)
	p.record(ctx, r, db.Event{Event: db.EventTransformEnd, Rows: int64(rs.Len())})

	parquetName := partition.ParquetName(r.date, id)
	parquetPath := filepath.Join(r.dir, parquetName)
	if err := parquetio.WriteFile(rs, parquetPath); err != nil {
		return art, fmt.Errorf("%w: %s: %w", ErrPersist, parquetName, err)
	}
	p.record(ctx, r, db.Event{Event: db.EventPersistEnd, FileName: parquetName, Rows: int64(rs.Len())})

	key := storage.Key(storage.ZoneProcessed, p.opts.Now(), parquetName)
	if err := p.upload(ctx, r, parquetPath, storage.ZoneProcessed, key); err != nil {
		return art, err
	}

	art.Zone, art.Key, art.LocalName = storage.ZoneProcessed, key, parquetName
	art.Rows, art.Columns = rs.Len(), rs.Width()
	elapsed := time.Since(start)
	p.record(ctx, r, db.Event{Event: db.EventProcessEnd, FileName: parquetName, ObjectKey: key, Rows: int64(rs.Len()), Duration: elapsed})
	r.logger.Info("Partition processed.",
		slog.String("key", key),
		slog.Int("rows", art.Rows),
		slog.Int("columns", art.Columns),
		slog.Duration("duration", elapsed.Round(time.Millisecond)))
	return art, nil
}

func (p *Pipeline) download(ctx context.Context, r *run, archiveName string) (string, error) {
	start := time.Now()
	p.record(ctx, r, db.Event{Event: db.EventDownloadStart, FileName: archiveName, Rows: -1})

	archivePath := filepath.Join(r.dir, archiveName)
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrPersist, archivePath, err)
	}
	n, dlErr := p.downloader.Download(ctx, archiveName, f)
	if closeErr := f.Close(); dlErr == nil && closeErr != nil {
		return "", fmt.Errorf("%w: close %s: %w", ErrPersist, archivePath, closeErr)
	}
	if dlErr != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRetrieval, archiveName, dlErr)
	}

	elapsed := time.Since(start)
	r.logger.Debug("Archive downloaded.", slog.Int64("bytes", n), slog.Duration("duration", elapsed.Round(time.Millisecond)))
	p.record(ctx, r, db.Event{Event: db.EventDownloadEnd, FileName: archiveName, Rows: -1, Duration: elapsed})
	return archivePath, nil
}

func (p *Pipeline) upload(ctx context.Context, r *run, localPath string, zone storage.Zone, key string) error {
	if err := p.uploader.Upload(ctx, localPath, zone, key); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrUpload, filepath.Base(localPath), key, err)
	}
	r.logger.Debug("Uploaded artifact.", slog.String("zone", string(zone)), slog.String("key", key))
	return nil
}

func (p *Pipeline) parse(textPath string) (*recordset.RecordSet, error) {
	f, err := os.Open(textPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrParse, filepath.Base(textPath), err)
	}
	defer f.Close()
	rs, err := recordset.ReadNDJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, filepath.Base(textPath), err)
	}
	return rs, nil
}

// transform flattens before casting; cast targets are named after unnested fields.
func (p *Pipeline) transform(r *run, rs *recordset.RecordSet) *recordset.RecordSet {
	flat, stats := transform.FlattenWithStats(rs)
	r.logger.Debug("Flattened records.",
		slog.Int("rows_in", stats.RowsIn),
		slog.Int("rows_out", stats.RowsOut),
		slog.Int("unnest_passes", stats.UnnestPasses),
		slog.Any("exploded", stats.Exploded))

	typed, report := transform.CastWithReport(flat, p.opts.Cast)
	for col, failed := range report {
		r.logger.Warn("Cast failures written as null.", slog.String("column", col), slog.Int("cells", failed))
	}
	return typed
}

func removeStaged(r *run, path string) {
	if err := os.Remove(path); err != nil {
		r.logger.Debug("Failed to remove staged file.", "path", path, "error", err)
	}
}

// record logs but never fails the partition on state log errors.
func (p *Pipeline) record(ctx context.Context, r *run, ev db.Event) {
	if p.recorder == nil {
		return
	}
	ev.Partition = string(r.id)
	ev.SnapshotDate = r.date
	if err := p.recorder.Record(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("Failed to record event.", "event", ev.Event, "error", err)
	}
}
