package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/pscparquet/internal/recordset"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "companies-house-psc", cfg.Bucket)
	assert.Equal(t, recordset.Int8, cfg.Cast.Ints["month"])
	assert.Contains(t, cfg.Cast.Dates, "notified_on")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, false},
		{"negative workers", func(c *Config) { c.NumWorkers = -1 }, false},
		{"minio without endpoint", func(c *Config) { c.StorageBackend = "minio" }, false},
		{"minio with endpoint", func(c *Config) { c.StorageBackend = "minio"; c.MinioEndpoint = "localhost:9000" }, true},
		{"unknown backend", func(c *Config) { c.StorageBackend = "ftp" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Config{NumWorkers: 3}.Workers())
	assert.GreaterOrEqual(t, Config{}.Workers(), 1)
	assert.Equal(t, DefaultNumWorkers(), Config{}.Workers())
}

func TestParseIntCasts(t *testing.T) {
	casts, err := ParseIntCasts(map[string]string{"month": "int8", "year": "Int16"})
	require.NoError(t, err)
	assert.Equal(t, map[string]recordset.Scalar{"month": recordset.Int8, "year": recordset.Int16}, casts)

	_, err = ParseIntCasts(map[string]string{"x": "date"})
	assert.Error(t, err)
}
