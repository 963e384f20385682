package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	date := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)
	id := ID("3of31")

	assert.Equal(t, "psc-snapshot-2024-03-15_3of31.zip", ArchiveName(date, id))
	assert.Equal(t, "psc-snapshot-2024-03-15_3of31.txt", TextName(date, id))
	assert.Equal(t, "psc-snapshot-2024-03-15_3of31.parquet", ParquetName(date, id))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"1of31", false},
		{"31of31", false},
		{"32of31", true},
		{"0of31", true},
		{"1-of-31", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ID(tt.in), id)
		})
	}
}

func TestRange(t *testing.T) {
	ids, err := Range(4, 31)
	require.NoError(t, err)
	assert.Equal(t, []ID{"1of31", "2of31", "3of31", "4of31"}, ids)

	_, err = Range(5, 4)
	assert.Error(t, err)
}

func TestParseAll_DropsDuplicates(t *testing.T) {
	ids, err := ParseAll([]string{"2of4", "1of4", "2of4"})
	require.NoError(t, err)
	assert.Equal(t, []ID{"2of4", "1of4"}, ids)

	_, err = ParseAll([]string{"1of4", "nope"})
	assert.Error(t, err)
}

func TestParseArchiveName(t *testing.T) {
	date, id, err := ParseArchiveName("psc-snapshot-2025-06-01_12of31.zip")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), date)
	assert.Equal(t, ID("12of31"), id)
	shard, total := id.Shard()
	assert.Equal(t, 12, shard)
	assert.Equal(t, 31, total)

	_, _, err = ParseArchiveName("psc-snapshot-2025-06-01.zip")
	assert.Error(t, err)
}
