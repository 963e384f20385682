// Package partition names snapshot shards and the files derived from them.
package partition

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// FilePrefix starts every snapshot file name.
const FilePrefix = "psc-snapshot-"

// DateLayout formats the processing date inside file names.
const DateLayout = "2006-01-02"

// ID identifies one shard of a dated snapshot, e.g. "1of31".
type ID string

var idPattern = regexp.MustCompile(`^([1-9][0-9]*)of([1-9][0-9]*)$`)

// Parse validates s as a shard identifier.
func Parse(s string) (ID, error) {
	m := idPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("invalid partition id %q: want <shard>of<total>", s)
	}
	shard, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])
	if shard > total {
		return "", fmt.Errorf("invalid partition id %q: shard exceeds total", s)
	}
	return ID(s), nil
}

// ParseAll validates a list of identifiers, keeping order and dropping duplicates.
func ParseAll(raw []string) ([]ID, error) {
	seen := make(map[ID]bool, len(raw))
	ids := make([]ID, 0, len(raw))
	for _, s := range raw {
		id, err := Parse(s)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// New formats shard n of total.
func New(shard, total int) ID {
	return ID(fmt.Sprintf("%dof%d", shard, total))
}

// Range returns shards 1..count of total, the batch convention for a run.
func Range(count, total int) ([]ID, error) {
	if count < 1 || total < 1 || count > total {
		return nil, fmt.Errorf("invalid shard range %d of %d", count, total)
	}
	ids := make([]ID, count)
	for i := range ids {
		ids[i] = New(i+1, total)
	}
	return ids, nil
}

// Shard returns the shard number and total. It returns zeros for an unparsed ID.
func (id ID) Shard() (shard, total int) {
	m := idPattern.FindStringSubmatch(string(id))
	if m == nil {
		return 0, 0
	}
	shard, _ = strconv.Atoi(m[1])
	total, _ = strconv.Atoi(m[2])
	return shard, total
}

func (id ID) String() string { return string(id) }

// Stem is the file name shared by every artifact of id on date, minus extension.
func Stem(date time.Time, id ID) string {
	return FilePrefix + date.Format(DateLayout) + "_" + string(id)
}

// ArchiveName is the published zip name, e.g. psc-snapshot-2024-03-15_3of31.zip.
func ArchiveName(date time.Time, id ID) string { return Stem(date, id) + ".zip" }

// TextName is the extracted NDJSON file name.
func TextName(date time.Time, id ID) string { return Stem(date, id) + ".txt" }

// ParquetName is the persisted columnar file name.
func ParquetName(date time.Time, id ID) string { return Stem(date, id) + ".parquet" }

var archivePattern = regexp.MustCompile(`^` + regexp.QuoteMeta(FilePrefix) + `(\d{4}-\d{2}-\d{2})_([1-9][0-9]*of[1-9][0-9]*)\.zip$`)

// ParseArchiveName recovers the date and ID from an archive file name.
func ParseArchiveName(name string) (time.Time, ID, error) {
	m := archivePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, "", fmt.Errorf("not a snapshot archive name: %q", name)
	}
	date, err := time.Parse(DateLayout, m[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("archive %q: %w", name, err)
	}
	id, err := Parse(m[2])
	if err != nil {
		return time.Time{}, "", err
	}
	return date, id, nil
}
